// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rferraz/library-circulation/internal/model"
)

// Policy carries the circulation constants the engine applies.  The
// defaults mirror the library's house rules: R$2.00 per day of late
// return, a 24-hour reservation pickup window, a five-day suspension
// after a late return, and 15/15/7-day loan durations for books,
// magazines and electronic media.
type Policy struct {
	FinePerDayCents    int64
	PickupWindow       time.Duration
	SuspensionDays     int
	BookLoanDays       int
	MagazineLoanDays   int
	ElectronicLoanDays int
}

// LoanDays returns the standard loan duration for a media type.
func (p Policy) LoanDays(m model.MediaType) int {
	switch m {
	case model.MediaElectronic:
		return p.ElectronicLoanDays
	case model.MediaMagazine:
		return p.MagazineLoanDays
	default:
		return p.BookLoanDays
	}
}

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.
type Config struct {
	Env           string        // application environment (e.g. "dev", "prod")
	Port          string        // HTTP port to listen on
	DBUser        string        // database username
	DBPass        string        // database password (optional)
	DBHost        string        // database host address
	DBPort        string        // database port number
	DBName        string        // database name
	SweepInterval time.Duration // how often the maintenance sweep runs
	Policy        Policy        // circulation policy constants
}

// Load reads configuration values from environment variables and
// returns a Config.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message;
// policy constants fall back to the documented defaults.
func Load() Config {
	return Config{
		Env:           must("APP_ENV"),
		Port:          must("APP_PORT"),
		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        must("DB_PORT"),
		DBName:        must("DB_NAME"),
		SweepInterval: parseDur(getenv("SWEEP_INTERVAL", "1m")),
		Policy:        LoadPolicy(),
	}
}

// LoadPolicy builds the circulation policy from environment variables,
// falling back to the defaults for anything unset.
func LoadPolicy() Policy {
	return Policy{
		FinePerDayCents:    int64(atoiDefault(getenv("FINE_PER_DAY_CENTS", "200"))),
		PickupWindow:       time.Duration(atoiDefault(getenv("PICKUP_WINDOW_HOURS", "24"))) * time.Hour,
		SuspensionDays:     atoiDefault(getenv("SUSPENSION_DAYS", "5")),
		BookLoanDays:       atoiDefault(getenv("LOAN_DAYS_BOOK", "15")),
		MagazineLoanDays:   atoiDefault(getenv("LOAN_DAYS_MAGAZINE", "15")),
		ElectronicLoanDays: atoiDefault(getenv("LOAN_DAYS_ELECTRONIC", "7")),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDefault(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value: %q", s)
	}
	return n
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Minute
	}
	return d
}
