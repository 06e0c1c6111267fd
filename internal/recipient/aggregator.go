package recipient

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Aggregator merges the primary and legacy stores into one recipient list.
// The primary store wins every identity conflict, and identity is the
// normalized email only.
type Aggregator struct {
	primary       Store
	legacy        Store
	countryPrefix string
	logger        zerolog.Logger
}

// NewAggregator takes the legacy store as an optional handle: pass nil when
// no legacy source was found at startup.
func NewAggregator(primary, legacy Store, countryPrefix string, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		primary:       primary,
		legacy:        legacy,
		countryPrefix: countryPrefix,
		logger:        logger,
	}
}

// ListUniqueContactableRecipients never writes to either store. A failing
// legacy store is logged and skipped; a failing primary store is an error.
func (a *Aggregator) ListUniqueContactableRecipients(ctx context.Context, f Filter) ([]Recipient, error) {
	primaryRows, err := a.primary.ListRecipients(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list primary recipients: %w", err)
	}

	out := make([]Recipient, 0, len(primaryRows))
	seen := make(map[string]struct{}, len(primaryRows))
	for _, row := range primaryRows {
		r := toRecipient(row, SourcePrimary, a.countryPrefix)
		if !r.Contactable() {
			continue
		}
		out = append(out, r)
		if r.Email != "" {
			seen[r.Email] = struct{}{}
		}
	}

	if a.legacy == nil {
		return out, nil
	}
	legacyRows, err := a.legacy.ListRecipients(ctx, f)
	if err != nil {
		a.logger.Warn().Err(err).Msg("legacy recipient store unavailable, using primary store only")
		return out, nil
	}

	var duplicates int
	for _, row := range legacyRows {
		r := toRecipient(row, SourceLegacy, a.countryPrefix)
		if r.Email != "" {
			if _, dup := seen[r.Email]; dup {
				duplicates++
				continue
			}
		}
		if !r.Contactable() {
			continue
		}
		// only primary emails are dedup keys; legacy-only rows pass through as-is
		out = append(out, r)
	}

	a.logger.Debug().
		Int("primary", len(primaryRows)).
		Int("legacy", len(legacyRows)).
		Int("duplicates", duplicates).
		Int("recipients", len(out)).
		Msg("recipients aggregated")
	return out, nil
}
