package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Mode: "debug"},
			Database: DatabaseConfig{Driver: "mysql"},
			JWT:      JWTConfig{Secret: "short"},
			OneNote:  OneNoteConfig{TokenKey: "k"},
			Feedback: FeedbackConfig{MaxSummaryFiles: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "postgres", mutate: func(c *Config) { c.Database.Driver = "postgres" }},
		{name: "short secret in release", mutate: func(c *Config) { c.Server.Mode = "release" }, wantErr: "JWT secret"},
		{name: "missing token key", mutate: func(c *Config) { c.OneNote.TokenKey = "" }, wantErr: "token_key"},
		{name: "negative summary limit", mutate: func(c *Config) { c.Feedback.MaxSummaryFiles = -1 }, wantErr: "max_summary_files"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: "driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
