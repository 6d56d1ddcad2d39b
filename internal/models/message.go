package models

// Template is a message template set with {placeholder} fields.
type Template struct {
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
	HTML    string `yaml:"html,omitempty" json:"html,omitempty"`
}

// Message is a fully formed email ready for the transport.
type Message struct {
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []string // file paths
}
