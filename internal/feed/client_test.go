package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMerchantName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "title cases shouting", input: "TARGET", want: "Target"},
		{name: "drops long numeric tail", input: "AMAZON.COM 123456789", want: "Amazon.Com"},
		{name: "keeps short store numbers", input: "COSTCO 482", want: "Costco 482"},
		{name: "strips corporate suffix", input: "STARBUCKS CORP", want: "Starbucks"},
		{name: "strips stacked suffixes", input: "acme co llc", want: "Acme"},
		{name: "capitalizes after separators", input: "7-ELEVEN", want: "7-Eleven"},
		{name: "empty stays empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMerchantName(tt.input))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid sandbox",
			config: Config{ClientID: "client", Secret: "secret", Environment: "sandbox"},
		},
		{
			name:   "valid production",
			config: Config{ClientID: "client", Secret: "secret", Environment: "production"},
		},
		{
			name:    "missing client id",
			config:  Config{Secret: "secret", Environment: "sandbox"},
			wantErr: true,
		},
		{
			name:    "missing secret",
			config:  Config{ClientID: "client", Environment: "sandbox"},
			wantErr: true,
		},
		{
			name:    "unknown environment",
			config:  Config{ClientID: "client", Secret: "secret", Environment: "staging"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
