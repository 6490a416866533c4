package models

import (
	"math"

	"github.com/smartbrief/core/internal/pkg/textutil"
	"gorm.io/gorm"
)

// SummaryStatus is the lifecycle state of a summary.
type SummaryStatus string

// SummaryCompleted is the only state written: failed generations store nothing.
const SummaryCompleted SummaryStatus = "completed"

// WordCount holds the derived word counts of both texts.
type WordCount struct {
	Original int `json:"original" gorm:"not null" bson:"original"`
	Summary  int `json:"summary"  gorm:"not null" bson:"summary"`
}

// SummaryModel is a generated summary owned by one user.
type SummaryModel struct {
	Base             `bson:",inline"`
	UserID           string        `json:"userId"           gorm:"type:char(36);not null;index" bson:"userId"`
	OriginalText     string        `json:"originalText"     gorm:"type:longtext;not null" bson:"originalText"`
	SummaryText      string        `json:"summary"          gorm:"type:text;not null" bson:"summary"`
	WordCount        WordCount     `json:"wordCount"        gorm:"embedded;embeddedPrefix:word_count_" bson:"wordCount"`
	Prompt           string        `json:"prompt"           gorm:"size:1000" bson:"prompt"`
	Provider         string        `json:"aiProvider"       gorm:"size:32;not null" bson:"aiProvider"`
	Model            string        `json:"model"            gorm:"size:128;not null" bson:"model"`
	Status           SummaryStatus `json:"status"           gorm:"size:16;not null;index" bson:"status"`
	ErrorMessage     string        `json:"error,omitempty"  gorm:"size:500" bson:"error,omitempty"`
	ProcessingTimeMs int64         `json:"processingTime"   gorm:"not null;default:0" bson:"processingTime"`
	CreditsUsed      int           `json:"creditsUsed"      gorm:"not null;default:1" bson:"creditsUsed"`

	// Owner is filled on reads; it is never stored with the summary.
	Owner *SummaryOwner `json:"owner,omitempty" gorm:"-" bson:"-"`
}

// SummaryOwner is the public projection of the owning account.
type SummaryOwner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (SummaryModel) TableName() string { return "summaries" }

// SetOriginalText replaces the source text and recomputes its word count.
func (s *SummaryModel) SetOriginalText(text string) {
	s.OriginalText = text
	s.WordCount.Original = textutil.CountWords(text)
}

// SetSummaryText replaces the generated text and recomputes its word count.
func (s *SummaryModel) SetSummaryText(text string) {
	s.SummaryText = text
	s.WordCount.Summary = textutil.CountWords(text)
}

// RefreshWordCount recomputes both counts from the current texts.
func (s *SummaryModel) RefreshWordCount() {
	s.WordCount.Original = textutil.CountWords(s.OriginalText)
	s.WordCount.Summary = textutil.CountWords(s.SummaryText)
}

// BeforeSave keeps WordCount consistent with the texts on every gorm write.
func (s *SummaryModel) BeforeSave(tx *gorm.DB) error {
	s.RefreshWordCount()
	return nil
}

// CompressionRatio is the percentage reduction in words, rounded to one decimal.
func (s *SummaryModel) CompressionRatio() float64 {
	return CompressionRatio(s.WordCount.Original, s.WordCount.Summary)
}

// CompressionRatio returns (original-summary)/original*100 rounded to one
// decimal, or 0 when original is 0.
func CompressionRatio(original, summary int) float64 {
	if original == 0 {
		return 0
	}
	ratio := float64(original-summary) / float64(original) * 100
	return math.Round(ratio*10) / 10
}

// IsOwnedBy reports whether userID created the summary.
func (s *SummaryModel) IsOwnedBy(userID string) bool {
	return userID != "" && s.UserID == userID
}

// OwnerIDs returns the distinct owners of items, in first-seen order.
func OwnerIDs(items []SummaryModel) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for i := range items {
		id := items[i].UserID
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// AttachOwners sets Owner on every item whose account is in users.
// Items of deleted accounts keep a nil Owner.
func AttachOwners(items []SummaryModel, users []UserModel) {
	byID := make(map[string]*SummaryOwner, len(users))
	for i := range users {
		u := &users[i]
		byID[u.ID] = &SummaryOwner{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	for i := range items {
		items[i].Owner = byID[items[i].UserID]
	}
}
