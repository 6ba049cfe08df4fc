package models

// MoodEntry is one mood check-in. Opaque payload for the sync layer.
type MoodEntry struct {
	Date  string `json:"date"`
	Mood  string `json:"mood"`
	Score int    `json:"score"`
}

type DiaryEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Mood      string `json:"mood"`
	Timestamp int64  `json:"timestamp"`
}

type ScheduleItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:mm
	Period    string `json:"period"`
	Timestamp int64  `json:"timestamp"`
	Alerted   bool   `json:"alerted"`
}

type RoutineItem struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Icon            string   `json:"icon"`
	Days            []int    `json:"days"` // 0-6 (Sun-Sat)
	StartTime       string   `json:"startTime"`
	StartPeriod     string   `json:"startPeriod"`
	EndTime         string   `json:"endTime"`
	EndPeriod       string   `json:"endPeriod"`
	DurationMinutes int      `json:"durationMinutes"`
	CompletedDates  []string `json:"completedDates"`
}

// Citizen is the canonical identity record. Code is the primary lookup key
// and the human-facing login handle; SecretHash holds a bcrypt hash of the
// access phrase, never the phrase itself.
type Citizen struct {
	Code         string `json:"code"`
	Handle       string `json:"handle,omitempty"`
	SecretHash   string `json:"secretHash,omitempty"`
	DisplayName  string `json:"displayName"`
	Country      string `json:"country"`
	AvatarRef    string `json:"avatarRef,omitempty"`
	ProfileColor string `json:"profileColor,omitempty"`
	Title        string `json:"title,omitempty"`
	Bio          string `json:"bio,omitempty"`

	MoodHistory  []MoodEntry    `json:"moodHistory"`
	DiaryEntries []DiaryEntry   `json:"diaryEntries"`
	Schedule     []ScheduleItem `json:"schedule"`
	Routines     []RoutineItem  `json:"routines"`

	MoodStreak   int    `json:"moodStreak"`
	LastMoodDate string `json:"lastMoodDate,omitempty"`
	MoodCoins    int    `json:"moodCoins"`

	PetName       string `json:"petName,omitempty"`
	PetEmoji      string `json:"petEmoji,omitempty"`
	PetLevel      int    `json:"petLevel"`
	PetExp        int    `json:"petExp"`
	PetChosen     bool   `json:"petHasBeenChosen"`
	PetBackground string `json:"petBackground,omitempty"`

	UnlockedBackgrounds []string `json:"unlockedBackgrounds"`

	Friends        []string `json:"friends"`
	FriendRequests []string `json:"friendRequests"`
	Following      []string `json:"following"`
	Followers      []string `json:"followers"`
	LikesReceived  int      `json:"likesReceived"`
}

// Message is one mailbox entry. Append-only; only Read ever changes.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
}

// DefaultBackground is always present in UnlockedBackgrounds.
const DefaultBackground = "default"

// Normalize fills every absent collection so consumers never observe a nil
// container. Stores that omit empty arrays (and partial records in general)
// are repaired here, not rejected. Idempotent.
func Normalize(c *Citizen) *Citizen {
	if c == nil {
		return nil
	}
	if c.MoodHistory == nil {
		c.MoodHistory = []MoodEntry{}
	}
	if c.DiaryEntries == nil {
		c.DiaryEntries = []DiaryEntry{}
	}
	if c.Schedule == nil {
		c.Schedule = []ScheduleItem{}
	}
	if c.Routines == nil {
		c.Routines = []RoutineItem{}
	}
	if c.Friends == nil {
		c.Friends = []string{}
	}
	if c.FriendRequests == nil {
		c.FriendRequests = []string{}
	}
	if c.Following == nil {
		c.Following = []string{}
	}
	if c.Followers == nil {
		c.Followers = []string{}
	}
	if len(c.UnlockedBackgrounds) == 0 {
		c.UnlockedBackgrounds = []string{DefaultBackground}
	}
	return c
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (c *Citizen) Clone() *Citizen {
	if c == nil {
		return nil
	}
	out := *c
	out.MoodHistory = append([]MoodEntry(nil), c.MoodHistory...)
	out.DiaryEntries = append([]DiaryEntry(nil), c.DiaryEntries...)
	out.Schedule = append([]ScheduleItem(nil), c.Schedule...)
	out.Routines = append([]RoutineItem(nil), c.Routines...)
	out.UnlockedBackgrounds = append([]string(nil), c.UnlockedBackgrounds...)
	out.Friends = append([]string(nil), c.Friends...)
	out.FriendRequests = append([]string(nil), c.FriendRequests...)
	out.Following = append([]string(nil), c.Following...)
	out.Followers = append([]string(nil), c.Followers...)
	return Normalize(&out)
}

// CitizenResponse is the outward profile shape; it never carries the secret
// hash.
type CitizenResponse struct {
	Code                string         `json:"code"`
	Handle              string         `json:"handle,omitempty"`
	DisplayName         string         `json:"displayName"`
	Country             string         `json:"country"`
	AvatarRef           string         `json:"avatarRef,omitempty"`
	ProfileColor        string         `json:"profileColor,omitempty"`
	Title               string         `json:"title,omitempty"`
	Bio                 string         `json:"bio,omitempty"`
	MoodHistory         []MoodEntry    `json:"moodHistory"`
	DiaryEntries        []DiaryEntry   `json:"diaryEntries"`
	Schedule            []ScheduleItem `json:"schedule"`
	Routines            []RoutineItem  `json:"routines"`
	MoodStreak          int            `json:"moodStreak"`
	LastMoodDate        string         `json:"lastMoodDate,omitempty"`
	MoodCoins           int            `json:"moodCoins"`
	PetName             string         `json:"petName,omitempty"`
	PetEmoji            string         `json:"petEmoji,omitempty"`
	PetLevel            int            `json:"petLevel"`
	PetExp              int            `json:"petExp"`
	PetChosen           bool           `json:"petHasBeenChosen"`
	PetBackground       string         `json:"petBackground,omitempty"`
	UnlockedBackgrounds []string       `json:"unlockedBackgrounds"`
	Friends             []string       `json:"friends"`
	FriendRequests      []string       `json:"friendRequests"`
	Following           []string       `json:"following"`
	Followers           []string       `json:"followers"`
	LikesReceived       int            `json:"likesReceived"`
}

// ToResponse converts a normalized record into its outward shape.
func ToResponse(c *Citizen) *CitizenResponse {
	if c == nil {
		return nil
	}
	c = Normalize(c)
	return &CitizenResponse{
		Code:                c.Code,
		Handle:              c.Handle,
		DisplayName:         c.DisplayName,
		Country:             c.Country,
		AvatarRef:           c.AvatarRef,
		ProfileColor:        c.ProfileColor,
		Title:               c.Title,
		Bio:                 c.Bio,
		MoodHistory:         c.MoodHistory,
		DiaryEntries:        c.DiaryEntries,
		Schedule:            c.Schedule,
		Routines:            c.Routines,
		MoodStreak:          c.MoodStreak,
		LastMoodDate:        c.LastMoodDate,
		MoodCoins:           c.MoodCoins,
		PetName:             c.PetName,
		PetEmoji:            c.PetEmoji,
		PetLevel:            c.PetLevel,
		PetExp:              c.PetExp,
		PetChosen:           c.PetChosen,
		PetBackground:       c.PetBackground,
		UnlockedBackgrounds: c.UnlockedBackgrounds,
		Friends:             c.Friends,
		FriendRequests:      c.FriendRequests,
		Following:           c.Following,
		Followers:           c.Followers,
		LikesReceived:       c.LikesReceived,
	}
}
