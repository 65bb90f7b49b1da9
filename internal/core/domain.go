package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventReminder EventType = "reminder"
	EventEvent    EventType = "event"
	EventTask     EventType = "task"
	EventBirthday EventType = "birthday"
)

const (
	TopicFinance NoteTopic = "finance"
	TopicHabits  NoteTopic = "habits"
)

// DefaultHabitCategory is used when a habit is created without a category.
const DefaultHabitCategory = "General"

// UncategorizedLabel groups expenses that carry no category.
const UncategorizedLabel = "Other"

var (
	// DefaultCategories seeds a user's expense category list on first access.
	DefaultCategories = []string{"Food", "Travel", "Mobile Recharge", "Taxi", "Utilities", "Movie", "Xerox", "Pharmacy", "Others"}
	// DefaultSources seeds a user's income source list on first access.
	DefaultSources = []string{"Salary", "Dad", "Investment", "Other"}
)

type (
	EventType string
	NoteTopic string

	// Identity is the authenticated user every query is scoped to.
	Identity struct {
		UID   string
		Email string
	}

	Expense struct {
		ID       string
		Owner    string
		Title    string
		Amount   decimal.Decimal
		Category string
		Date     time.Time
	}

	Income struct {
		ID     string
		Owner  string
		Title  string
		Amount decimal.Decimal
		Source string
		Date   time.Time
	}

	// Preferences holds the per-user category and source lists.
	Preferences struct {
		Categories []string
		Sources    []string
	}

	Habit struct {
		ID        string
		Owner     string
		Title     string
		Category  string
		CreatedAt time.Time
	}

	// HabitLog marks a habit as completed on Date (YYYY-MM-DD).
	HabitLog struct {
		ID        string
		HabitID   string
		Owner     string
		Date      string
		CreatedAt time.Time
	}

	Event struct {
		ID          string
		Owner       string
		Title       string
		Type        EventType
		Date        string
		Time        string
		Description string
		CreatedAt   time.Time
	}

	Note struct {
		Owner     string
		Topic     NoteTopic
		Content   string
		UpdatedAt time.Time
	}

	// Goal lives only in on-device storage.
	Goal struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		TargetDate *time.Time `json:"targetDate"`
		Completed  bool       `json:"completed"`
		CreatedAt  time.Time  `json:"createdAt"`
	}
)

var (
	ErrEmptyTitle       = errors.New("empty title")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrInvalidTopic     = errors.New("invalid note topic")
	ErrInvalidDay       = errors.New("invalid day, expected YYYY-MM-DD")
	ErrEmptyHabitID     = errors.New("empty habit id")
)

// IsZero reports whether no user is signed in.
func (id Identity) IsZero() bool {
	return id.UID == ""
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventReminder, EventEvent, EventTask, EventBirthday:
		return true
	default:
		return false
	}
}

func (t NoteTopic) Valid() bool {
	return t == TopicFinance || t == TopicHabits
}

// LogID is the deterministic habit log key for (habitID, day).
func LogID(habitID, day string) string {
	return habitID + "_" + day
}

// NoteID is the note document key for one user and topic.
func NoteID(owner string, topic NoteTopic) string {
	return owner + "_" + string(topic)
}

// CategoryOrDefault returns the expense category used for grouping.
func (e Expense) CategoryOrDefault() string {
	if strings.TrimSpace(e.Category) == "" {
		return UncategorizedLabel
	}
	return e.Category
}

func (s Income) SourceOrDefault() string {
	if strings.TrimSpace(s.Source) == "" {
		return UncategorizedLabel
	}
	return s.Source
}

func (h Habit) CategoryOrDefault() string {
	if strings.TrimSpace(h.Category) == "" {
		return DefaultHabitCategory
	}
	return h.Category
}

// Validate checks the fields an event needs before it is written.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if !e.Type.Valid() {
		return ErrInvalidEventType
	}
	if _, err := ParseDay(e.Date); err != nil {
		return err
	}
	return nil
}
