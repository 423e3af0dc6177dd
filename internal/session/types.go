package session

import (
	"encoding/json"
)

// DistractionType classifies what kind of drift a detector observed.
type DistractionType int

const (
	None DistractionType = iota
	TabSwitch
	Social
	Entertainment
	Shopping
	News
	Blacklisted
	IrrelevantContent
	CameraDistraction
	Idle
)

var distractionNames = map[DistractionType]string{
	None:              "none",
	TabSwitch:         "tab_switch",
	Social:            "social",
	Entertainment:     "entertainment",
	Shopping:          "shopping",
	News:              "news",
	Blacklisted:       "blacklisted",
	IrrelevantContent: "irrelevant_content",
	CameraDistraction: "camera_distraction",
	Idle:              "idle",
}

var distractionFromName = map[string]DistractionType{
	"none":               None,
	"tab_switch":         TabSwitch,
	"social":             Social,
	"entertainment":      Entertainment,
	"shopping":           Shopping,
	"news":               News,
	"blacklisted":        Blacklisted,
	"irrelevant_content": IrrelevantContent,
	"camera_distraction": CameraDistraction,
	"idle":               Idle,
}

func (d DistractionType) String() string {
	if s, ok := distractionNames[d]; ok {
		return s
	}
	return "unknown"
}

// TypeFromName maps a category name from config (e.g. "entertainment") to a
// DistractionType. Unknown names map to IrrelevantContent so that a typo in
// the rules file degrades to the generic classification instead of None.
func TypeFromName(name string) DistractionType {
	if t, ok := distractionFromName[name]; ok && t != None {
		return t
	}
	return IrrelevantContent
}

func (d DistractionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DistractionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := distractionFromName[s]; ok {
		*d = v
	}
	return nil
}

// ResponseChoice is the user's resolution of a distraction episode.
type ResponseChoice int

const (
	ReturnToCourse ResponseChoice = iota
	Exploring
)

var choiceNames = map[ResponseChoice]string{
	ReturnToCourse: "return_to_course",
	Exploring:      "exploring",
}

var choiceFromName = map[string]ResponseChoice{
	"return_to_course": ReturnToCourse,
	"exploring":        Exploring,
}

func (c ResponseChoice) String() string {
	if s, ok := choiceNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseChoice converts a wire-format choice string. The second return is
// false for unrecognized input.
func ParseChoice(s string) (ResponseChoice, bool) {
	c, ok := choiceFromName[s]
	return c, ok
}

func (c ResponseChoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ResponseChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := choiceFromName[s]; ok {
		*c = v
	}
	return nil
}
