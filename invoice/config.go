// CLAUDE:SUMMARY Service config, runtime settings keys, defaults, and settings snapshot loading.
package invoice

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sinthos/PPV-Rechnung-Versenden/storage"
)

// Setting keys stored in app_settings. Values are strings; booleans are
// "true"/"false".
const (
	KeySourceFolder  = "source_folder"
	KeyTargetFolder  = "target_folder"
	KeySendTime      = "send_time"
	KeyEmailTemplate = "email_template"
	KeySendPastDates = "send_past_dates"

	KeyStorageType = "storage_type"
	KeySMBHost     = "smb_host"
	KeySMBShare    = "smb_share"
	KeySMBUsername = "smb_username"
	KeySMBPassword = "smb_password"
	KeySMBDomain   = "smb_domain"

	KeyTenantID      = "tenant_id"
	KeyClientID      = "client_id"
	KeyClientSecret  = "client_secret"
	KeySenderAddress = "sender_address"
)

// DefaultEmailTemplate is the body sent when no template is configured.
const DefaultEmailTemplate = `Sehr geehrte Damen und Herren,

anbei erhalten Sie unsere Rechnung als PDF-Dokument.

Bei Fragen stehen wir Ihnen gerne zur Verfügung.

Mit freundlichen Grüßen
PPV Medien GmbH`

// InvoicePattern matches candidate files in the source folder. Anything
// else there is ignored.
const InvoicePattern = "RE-*.pdf"

// Config holds the static service configuration. Runtime-changeable
// values live in the settings store instead.
type Config struct {
	// SourceFolder and TargetFolder are defaults used until overridden
	// through the settings API.
	SourceFolder string
	TargetFolder string
	// SendTime is the default daily send time, "HH:MM".
	SendTime string
	// Location is the reference timezone for date eligibility and for
	// the daily trigger. Default: Europe/Berlin, falling back to UTC.
	Location *time.Location
	// MailTimeout bounds one outbound send. Default: 30s.
	MailTimeout time.Duration
	// LogLimit is the maximum number of delivery log rows returned to
	// API callers. Default: 100.
	LogLimit int
}

func (c *Config) defaults() {
	if c.SourceFolder == "" {
		c.SourceFolder = "./invoices/source"
	}
	if c.TargetFolder == "" {
		c.TargetFolder = "./invoices/sent"
	}
	if c.SendTime == "" {
		c.SendTime = "09:00"
	}
	if c.Location == nil {
		loc, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
	if c.MailTimeout <= 0 {
		c.MailTimeout = 30 * time.Second
	}
	if c.LogLimit <= 0 {
		c.LogLimit = 100
	}
}

// Settings is the snapshot a batch run operates on. It is read once at
// batch start; mid-run changes do not affect an in-flight batch.
type Settings struct {
	SourceFolder  string `json:"source_folder"`
	TargetFolder  string `json:"target_folder"`
	SendTime      string `json:"send_time"`
	EmailTemplate string `json:"email_template"`
	SendPastDates bool   `json:"send_past_dates"`

	StorageType string `json:"storage_type"`
	SMBHost     string `json:"smb_host"`
	SMBShare    string `json:"smb_share"`
	SMBUsername string `json:"smb_username"`
	SMBPassword string `json:"smb_password,omitempty"`
	SMBDomain   string `json:"smb_domain"`

	TenantID      string `json:"tenant_id"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	SenderAddress string `json:"sender_address"`
}

// StorageConfig maps the snapshot onto a storage backend selection.
func (st Settings) StorageConfig() storage.Config {
	return storage.Config{
		Type:        st.StorageType,
		SMBHost:     st.SMBHost,
		SMBShare:    st.SMBShare,
		SMBUsername: st.SMBUsername,
		SMBPassword: st.SMBPassword,
		SMBDomain:   st.SMBDomain,
	}
}

// loadSettings reads the full snapshot, applying config defaults for
// absent keys.
func (s *Service) loadSettings(ctx context.Context) (Settings, error) {
	get := func(key, def string) (string, error) {
		return s.store.GetSetting(ctx, key, def)
	}

	var out Settings
	var err error
	if out.SourceFolder, err = get(KeySourceFolder, s.config.SourceFolder); err != nil {
		return out, err
	}
	if out.TargetFolder, err = get(KeyTargetFolder, s.config.TargetFolder); err != nil {
		return out, err
	}
	if out.SendTime, err = get(KeySendTime, s.config.SendTime); err != nil {
		return out, err
	}
	if out.EmailTemplate, err = get(KeyEmailTemplate, DefaultEmailTemplate); err != nil {
		return out, err
	}
	past, err := get(KeySendPastDates, "false")
	if err != nil {
		return out, err
	}
	out.SendPastDates, _ = strconv.ParseBool(past)

	if out.StorageType, err = get(KeyStorageType, "local"); err != nil {
		return out, err
	}
	if out.SMBHost, err = get(KeySMBHost, ""); err != nil {
		return out, err
	}
	if out.SMBShare, err = get(KeySMBShare, ""); err != nil {
		return out, err
	}
	if out.SMBUsername, err = get(KeySMBUsername, ""); err != nil {
		return out, err
	}
	if out.SMBPassword, err = get(KeySMBPassword, ""); err != nil {
		return out, err
	}
	if out.SMBDomain, err = get(KeySMBDomain, ""); err != nil {
		return out, err
	}

	if out.TenantID, err = get(KeyTenantID, ""); err != nil {
		return out, err
	}
	if out.ClientID, err = get(KeyClientID, ""); err != nil {
		return out, err
	}
	if out.ClientSecret, err = get(KeyClientSecret, ""); err != nil {
		return out, err
	}
	if out.SenderAddress, err = get(KeySenderAddress, ""); err != nil {
		return out, err
	}
	return out, nil
}

var sendTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// parseSendTime parses "HH:MM". Invalid input falls back to 09:00 with
// ok=false so callers can warn without failing.
func parseSendTime(s string) (hour, minute int, ok bool) {
	m := sendTimeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 9, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, true
}

// validateSetting rejects unknown keys and malformed values before they
// reach the store.
func validateSetting(key, value string) error {
	switch key {
	case KeySendTime:
		if _, _, ok := parseSendTime(value); !ok {
			return fmt.Errorf("invoice: invalid send time %q, expected HH:MM", value)
		}
	case KeyStorageType:
		if value != "local" && value != "smb" {
			return fmt.Errorf("invoice: invalid storage type %q", value)
		}
	case KeySendPastDates:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("invoice: invalid boolean %q for %s", value, key)
		}
	case KeySourceFolder, KeyTargetFolder:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("invoice: %s must not be empty", key)
		}
	case KeyEmailTemplate:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("invoice: email template must not be empty")
		}
	case KeySMBHost, KeySMBShare, KeySMBUsername, KeySMBPassword, KeySMBDomain,
		KeyTenantID, KeyClientID, KeyClientSecret, KeySenderAddress:
		// free-form
	default:
		return fmt.Errorf("invoice: unknown setting %q", key)
	}
	return nil
}
