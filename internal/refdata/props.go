package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/metscube/shipsync/internal/logging"
)

// Property keys in the key-value store.
const (
	propGlobalMarkup = "COST_MARKUP_PERCENTAGE"
	propCartonSMax   = "CARTON_SIZE_S_MAX"
	propCartonMMax   = "CARTON_SIZE_M_MAX"
	propCartonLMax   = "CARTON_SIZE_L_MAX"
	propCartonXLMax  = "CARTON_SIZE_XL_MAX"
	propClientEmails = "CLIENT_EMAILS_ENABLED"
)

// CartonThresholds are inclusive upper bounds on package volume for the
// S/M/L/XL buckets.
type CartonThresholds struct {
	SMax  float64
	MMax  float64
	LMax  float64
	XLMax float64
}

// DefaultCartonThresholds returns the stock volume buckets.
func DefaultCartonThresholds() CartonThresholds {
	return CartonThresholds{SMax: 350, MMax: 1000, LMax: 3500, XLMax: 999999}
}

// Valid reports whether the thresholds are strictly increasing.
func (t CartonThresholds) Valid() bool {
	return t.SMax > 0 && t.SMax < t.MMax && t.MMax < t.LMax && t.LMax < t.XLMax
}

// RunConfig is the per-run snapshot of mutable configuration. It is
// built once at run start and passed by value; no component re-reads
// the property store mid-run.
type RunConfig struct {
	GlobalMarkupPct     float64
	Cartons             CartonThresholds
	ClientEmailsEnabled bool
}

// Properties reads scalar configuration from the key-value store.
type Properties struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewProperties creates a property reader over the given Redis client.
func NewProperties(rdb *redis.Client) *Properties {
	return &Properties{
		rdb: rdb,
		log: logging.Component("props"),
	}
}

// Snapshot reads every property once and returns a consistent RunConfig.
// Missing keys fall back to defaults; malformed carton thresholds fall
// back to the stock buckets.
func (p *Properties) Snapshot(ctx context.Context) (RunConfig, error) {
	rc := RunConfig{Cartons: DefaultCartonThresholds()}

	markup, err := p.getFloat(ctx, propGlobalMarkup, 0)
	if err != nil {
		return rc, fmt.Errorf("read global markup: %w", err)
	}
	rc.GlobalMarkupPct = markup

	cartons := CartonThresholds{}
	cartons.SMax, err = p.getFloat(ctx, propCartonSMax, rc.Cartons.SMax)
	if err != nil {
		return rc, fmt.Errorf("read carton thresholds: %w", err)
	}
	cartons.MMax, err = p.getFloat(ctx, propCartonMMax, rc.Cartons.MMax)
	if err != nil {
		return rc, fmt.Errorf("read carton thresholds: %w", err)
	}
	cartons.LMax, err = p.getFloat(ctx, propCartonLMax, rc.Cartons.LMax)
	if err != nil {
		return rc, fmt.Errorf("read carton thresholds: %w", err)
	}
	cartons.XLMax, err = p.getFloat(ctx, propCartonXLMax, rc.Cartons.XLMax)
	if err != nil {
		return rc, fmt.Errorf("read carton thresholds: %w", err)
	}

	if cartons.Valid() {
		rc.Cartons = cartons
	} else {
		p.log.Warn("carton thresholds not monotonic, using defaults",
			"s_max", cartons.SMax, "m_max", cartons.MMax,
			"l_max", cartons.LMax, "xl_max", cartons.XLMax,
		)
	}

	enabled, err := p.rdb.Get(ctx, propClientEmails).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return rc, fmt.Errorf("read %s: %w", propClientEmails, err)
	}
	rc.ClientEmailsEnabled = enabled == "true"

	return rc, nil
}

// getFloat reads one numeric property, falling back on a missing key or
// unparseable value.
func (p *Properties) getFloat(ctx context.Context, key string, def float64) (float64, error) {
	val, err := p.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return def, nil
		}
		return def, err
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		p.log.Warn("malformed numeric property", "key", key, "value", val)
		return def, nil
	}
	return parsed, nil
}
