package core

import (
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"testing"

	appfs "github.com/trezcool/mashauri/fs"
)

func TestEmailTemplatesEmbedded(t *testing.T) {
	fnames := []string{
		"_base.txt", "_base.gohtml",
		"password-reset.txt", "password-reset.gohtml",
		"case-assigned.txt", "case-assigned.gohtml",
		"case-status.txt", "case-status.gohtml",
	}
	for _, fname := range fnames {
		if _, err := fs.Stat(appfs.FS, path.Join(emailTemplateDir, fname)); err != nil {
			t.Errorf("failed! %s not embedded: %v", fname, err)
		}
	}
}

func TestEmailMessage_Render(t *testing.T) {
	Conf.TestMode = true

	msg := &EmailMessage{
		To:           []mail.Address{{Name: "Awe", Address: "awe@test.cd"}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Username string
			UID      string
			Token    string
		}{
			Username: "awe001",
			UID:      "MQ",
			Token:    "abc-123",
		},
	}
	if err := msg.Render(); err != nil {
		t.Fatalf("Render() failed, %v", err)
	}
	if !msg.HasContent() {
		t.Fatal("failed! message has no content")
	}

	wantLink := Conf.FrontendBaseURL + "/password-reset/MQ/abc-123"
	if !strings.Contains(msg.TextContent, wantLink) {
		t.Errorf("failed! TextContent missing reset link %q;\n%s", wantLink, msg.TextContent)
	}
	if !strings.Contains(msg.HTMLContent, wantLink) {
		t.Errorf("failed! HTMLContent missing reset link %q;\n%s", wantLink, msg.HTMLContent)
	}
}
