package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
)

// symptomBiomarkers maps a symptom name to the lab biomarkers it implicates.
var symptomBiomarkers = map[string][]string{
	"Fatigue":              {"vitamin_d", "vitamin_b12", "ferritin", "tsh", "cortisol"},
	"Low Libido":           {"testosterone", "free_testosterone", "estradiol", "shbg", "prolactin"},
	"Erectile Dysfunction": {"testosterone", "free_testosterone", "estradiol", "hba1c"},
	"Low Motivation":       {"testosterone", "dhea_s", "vitamin_d"},
	"Mood Swings":          {"estradiol", "progesterone", "cortisol", "tsh"},
	"Irritability":         {"cortisol", "testosterone", "estradiol"},
	"Anxiety":              {"cortisol", "tsh", "free_t4", "magnesium"},
	"Depression":           {"vitamin_d", "vitamin_b12", "tsh", "testosterone"},
	"Brain Fog":            {"vitamin_b12", "tsh", "free_t3", "ferritin", "hba1c"},
	"Poor Concentration":   {"vitamin_b12", "tsh", "ferritin"},
	"Memory Issues":        {"vitamin_b12", "vitamin_d", "homocysteine", "tsh"},
	"Insomnia":             {"cortisol", "magnesium", "progesterone"},
	"Poor Sleep Quality":   {"cortisol", "magnesium", "vitamin_d"},
	"Night Sweats":         {"estradiol", "fsh", "lh", "tsh"},
	"Hot Flashes":          {"estradiol", "fsh", "lh"},
	"Weight Gain":          {"tsh", "free_t3", "insulin", "hba1c", "cortisol"},
	"Slow Metabolism":      {"tsh", "free_t3", "free_t4", "reverse_t3"},
	"Sugar Cravings":       {"glucose", "insulin", "hba1c"},
	"Hair Loss":            {"ferritin", "tsh", "dht", "testosterone", "zinc"},
	"Acne":                 {"testosterone", "dht", "dhea_s", "insulin"},
	"Dry Skin":             {"tsh", "free_t4", "omega_3_index"},
}

// BiomarkerCorrelator links active symptoms to biomarker flags.
type BiomarkerCorrelator struct {
	logger *logrus.Logger
	flags  domain.BiomarkerFlagStore
	table  map[string][]string
	now    func() time.Time
}

// NewBiomarkerCorrelator creates a correlator over the built-in symptom table.
func NewBiomarkerCorrelator(flags domain.BiomarkerFlagStore, logger *logrus.Logger) *BiomarkerCorrelator {
	return &BiomarkerCorrelator{
		logger: logger,
		flags:  flags,
		table:  symptomBiomarkers,
		now:    time.Now,
	}
}

// BiomarkersFor returns the biomarkers implicated by a symptom, or nil when the
// symptom is unmapped.
func (c *BiomarkerCorrelator) BiomarkersFor(symptom string) []string {
	return append([]string(nil), c.table[symptom]...)
}

// FlagFromSymptoms creates a symptom_triggered flag for every biomarker implicated
// by the given symptoms and returns how many new flags were created. A flag store
// failure skips that biomarker.
func (c *BiomarkerCorrelator) FlagFromSymptoms(ctx context.Context, userID string, symptoms []string) int {
	names := append([]string(nil), symptoms...)
	sort.Strings(names)

	created := 0
	requested := make(map[string]bool)
	for _, symptom := range names {
		for _, biomarker := range c.table[symptom] {
			if requested[biomarker] {
				continue
			}
			requested[biomarker] = true

			flag := &domain.BiomarkerFlag{
				UserID:            userID,
				Biomarker:         biomarker,
				Reason:            domain.ReasonSymptomTriggered,
				Note:              fmt.Sprintf("Flagged from reported symptom: %s", symptom),
				Status:            domain.FlagActive,
				Source:            domain.FlagSourceSymptomLedger,
				TriggeringSymptom: symptom,
				CreatedAt:         c.now().UTC(),
			}
			ok, err := c.flags.CreateFlag(ctx, flag)
			if err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"user_id":   userID,
					"biomarker": biomarker,
					"symptom":   symptom,
				}).Warn("Failed to create biomarker flag, skipping")
				continue
			}
			if ok {
				created++
			}
		}
	}
	return created
}

// ResolveUnflagged removes from log every symptom implicating biomarker whose
// mapped biomarkers are all inactive, along with its trigger conditions. It
// returns the removed names; the caller rebuilds the log. A flag store failure
// counts as an active flag.
func (c *BiomarkerCorrelator) ResolveUnflagged(ctx context.Context, userID, biomarker string, log *domain.SymptomLog, triggers domain.TriggerStore) []string {
	active := make(map[string]bool)
	isActive := func(b string) bool {
		if v, ok := active[b]; ok {
			return v
		}
		has, err := c.flags.HasActiveFlag(ctx, userID, b)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":   userID,
				"biomarker": b,
			}).Warn("Failed to check biomarker flag, treating as active")
			has = true
		}
		active[b] = has
		return has
	}

	var removed []string
	for _, name := range log.Names() {
		mapped := c.table[name]
		if !slices.Contains(mapped, biomarker) {
			continue
		}
		allCleared := true
		for _, b := range mapped {
			if isActive(b) {
				allCleared = false
				break
			}
		}
		if !allCleared {
			continue
		}
		log.Remove(name)
		delete(triggers, name)
		removed = append(removed, name)
	}
	return removed
}
