package model

// SenderProfile, EmailTemplate and Attachment are owned by the CRUD layer;
// the dispatch path only reads them.

type SenderProfile struct {
	ID           int    `db:"id" json:"id" yaml:"id"`
	Name         string `db:"name" json:"name" yaml:"name"`
	SMTPHost     string `db:"smtp_host" json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `db:"smtp_port" json:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string `db:"smtp_username" json:"smtp_username" yaml:"smtp_username"`
	SMTPPassword string `db:"smtp_password" json:"-" yaml:"smtp_password"`
	FromAddress  string `db:"from_address" json:"from_address" yaml:"from_address"`
	FromName     string `db:"from_name" json:"from_name" yaml:"from_name"`
	IsActive     bool   `db:"is_active" json:"is_active" yaml:"is_active"`
}

// HasCredentials is false when the profile cannot authenticate to SMTP.
func (s *SenderProfile) HasCredentials() bool {
	return s.SMTPUsername != "" && s.SMTPPassword != ""
}

type EmailTemplate struct {
	ID          int    `db:"id" json:"id" yaml:"id"`
	Name        string `db:"name" json:"name" yaml:"name"`
	Subject     string `db:"subject" json:"subject" yaml:"subject"`
	HTMLContent string `db:"html_content" json:"html_content" yaml:"html_content"`
	TextContent string `db:"text_content" json:"text_content" yaml:"text_content"`
}

type Attachment struct {
	ID       int    `db:"id" json:"id" yaml:"id"`
	Name     string `db:"name" json:"name" yaml:"name"`
	FileType string `db:"file_type" json:"file_type" yaml:"file_type"`
	FilePath string `db:"file_path" json:"-" yaml:"file_path"`
}
