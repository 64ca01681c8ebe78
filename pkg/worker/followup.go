package worker

import (
	"context"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/events"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

const (
	// maxFollowupPriority caps how far back-processing is deprioritized;
	// lower numbers run first
	maxFollowupPriority = 10

	// multiSourceDelay gives sibling source products time to finish
	// before a multi-source product reads them
	multiSourceDelay = 15 * time.Minute

	// frozenParentDelay deprioritizes reprocessing chains rooted in an
	// already-finalized file
	frozenParentDelay = time.Hour
)

// experimentalFollowups are the experimental products that do fan out
// from their parents; all other experimental products run only when
// requested explicitly
var experimentalFollowups = map[string]bool{
	types.ProductCprSimulation: true,
	types.ProductEpsilonLidar:  true,
}

// publishDerived enqueues a process task for every product derived
// from the one just processed, so a Level-1b update ripples through
// categorize and the Level-2 retrievals on its own.
func (w *Worker) publishDerived(ctx context.Context, params types.ProcessParams, frozenParent bool) error {
	base := params.Base()
	priority := followupPriority(base.Date, types.Today())

	for _, derivedID := range base.Product.DerivedProductIDs {
		derived, err := w.processor.GetProduct(ctx, derivedID)
		if err != nil {
			return err
		}
		if derived.IsExperimental() && !experimentalFollowups[derived.ID] {
			continue
		}
		delay := followupDelay(len(derived.SourceProductIDs), frozenParent)
		payload := &types.TaskPayload{
			Type:            types.TaskProcess,
			SiteID:          base.Site.ID,
			ProductID:       derived.ID,
			MeasurementDate: base.Date,
			ScheduledAt:     time.Now().UTC().Add(delay),
			Priority:        priority,
			Options:         types.TaskOptions{DerivedProducts: true},
		}
		attachScope(payload, derived, params)
		if err := w.portal.PublishTask(ctx, payload); err != nil {
			return err
		}
		w.logger.Info().
			Str("product", derived.ID).
			Str("site", base.Site.ID).
			Str("date", base.Date.String()).
			Int("priority", priority).
			Msg("Follow-up task published")
		if w.broker != nil {
			w.broker.Publish(events.New(events.EventTaskPublished, derivedID, map[string]string{
				"site":    base.Site.ID,
				"product": derivedID,
				"date":    base.Date.String(),
			}))
		}
	}
	return nil
}

// followupPriority ranks follow-ups by how fresh the measurement day
// is. Near-real-time days preempt historical reprocessing.
func followupPriority(date, today types.Date) int {
	days := today.DaysSince(date)
	if days < 0 {
		days = -days
	}
	if days > maxFollowupPriority {
		return maxFollowupPriority
	}
	return days
}

// followupDelay spaces a follow-up behind its trigger. A derived
// product reading several sources waits for the parent's peers; a
// frozen parent always takes the long delay.
func followupDelay(sourceCount int, frozenParent bool) time.Duration {
	if frozenParent {
		return frozenParentDelay
	}
	if sourceCount > 1 {
		return multiSourceDelay
	}
	return 0
}

// attachScope narrows the follow-up to the parent's instrument or
// model when the derived product is scoped the same way
func attachScope(payload *types.TaskPayload, derived *types.Product, params types.ProcessParams) {
	if derivedCarriesInstrument(derived) {
		switch t := params.(type) {
		case *types.InstrumentParams:
			uuid := t.Instrument.UUID
			payload.InstrumentInfoUUID = &uuid
		case *types.ProductParams:
			if t.Instrument != nil {
				uuid := t.Instrument.UUID
				payload.InstrumentInfoUUID = &uuid
			}
		}
	}
	switch derived.Kind() {
	case types.KindModel, types.KindEvaluation:
		if t, ok := params.(*types.ModelParams); ok {
			id := t.Model.ID
			payload.ModelID = &id
		}
	}
}

// derivedCarriesInstrument reports whether the derived product is tied
// to one physical instrument rather than the whole site
func derivedCarriesInstrument(derived *types.Product) bool {
	if derived.IsInstrument() {
		return true
	}
	switch derived.ID {
	case types.ProductMwrSingle, types.ProductMwrMulti, types.ProductEpsilonLidar:
		return true
	}
	return false
}
