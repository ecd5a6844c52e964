package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jaracil/smsgate"
	"gopkg.in/yaml.v3"
)

// Options are the command line options of the gateway.
type Options struct {
	Port         string        `short:"p" long:"port" env:"SMSGATE_PORT" default:"/dev/ttyUSB0" description:"Modem serial port"`
	Baud         int           `short:"b" long:"baud" env:"SMSGATE_BAUD" default:"9600" description:"Serial baud rate"`
	Listen       string        `short:"l" long:"listen" env:"SMSGATE_LISTEN" default:":8080" description:"HTTP listen address"`
	Secrets      string        `short:"s" long:"secrets" env:"SMSGATE_SECRETS" description:"YAML file with admin_identity and secret_phrase"`
	Admin        string        `long:"admin" env:"SMSGATE_ADMIN" description:"Admin phone number (overrides secrets file)"`
	Secret       string        `long:"secret" env:"SMSGATE_SECRET" description:"Secret phrase (overrides secrets file)"`
	RelayPath    string        `long:"relay" env:"SMSGATE_RELAY" description:"GPIO value file driving the relay; logs only when empty"`
	Timeout      time.Duration `long:"timeout" default:"5s" description:"Modem transaction timeout"`
	Pulse        time.Duration `long:"pulse" default:"1s" description:"Relay pulse duration"`
	NotifyPrefix string        `long:"notify-prefix" default:"+CMT:" description:"Prefix of inbound message notifications"`
	InitCommands []string      `long:"init" description:"Modem init command, repeatable (default: AT, ATE0, AT+CMGF=1, AT+CNMI=2,2,0,0,0)"`
	NoInit       bool          `long:"no-init" description:"Skip modem initialization"`
	Debug        bool          `short:"d" long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type secretsFile struct {
	AdminIdentity string `yaml:"admin_identity"`
	SecretPhrase  string `yaml:"secret_phrase"`
}

// authorization builds the immutable authorization record. Values given on
// the command line or environment win over the secrets file.
func (o *Options) authorization() (smsgate.AuthorizationRecord, error) {
	var rec smsgate.AuthorizationRecord
	if o.Secrets != "" {
		data, err := os.ReadFile(o.Secrets)
		if err != nil {
			return rec, fmt.Errorf("read secrets: %w", err)
		}
		var sf secretsFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return rec, fmt.Errorf("parse secrets %s: %w", o.Secrets, err)
		}
		rec.AdminIdentity = sf.AdminIdentity
		rec.SecretPhrase = sf.SecretPhrase
	}
	if o.Admin != "" {
		rec.AdminIdentity = o.Admin
	}
	if o.Secret != "" {
		rec.SecretPhrase = o.Secret
	}
	if rec.AdminIdentity == "" || rec.SecretPhrase == "" {
		return rec, fmt.Errorf("admin identity and secret phrase are required: %w", smsgate.ErrConfigRequired)
	}
	return rec, nil
}

func (o *Options) initCommands() []string {
	if o.NoInit {
		return []string{}
	}
	return o.InitCommands
}
