package folio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCrawler(t *testing.T) {
	tests := []struct {
		ua   string
		want bool
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"facebookexternalhit/1.1", true},
		{"Slackbot-LinkExpanding 1.0", true},
		{"", true},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isCrawler(tt.ua), tt.ua)
	}
}
