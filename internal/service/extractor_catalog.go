package service

import (
	"github.com/symptom-ledger-server/internal/domain"
)

// Built-in assessment types.
const (
	AssessmentHormone            domain.AssessmentType = "hormone"
	AssessmentEnergy             domain.AssessmentType = "energy"
	AssessmentSleep              domain.AssessmentType = "sleep"
	AssessmentWeightLoss         domain.AssessmentType = "weight_loss"
	AssessmentSkin               domain.AssessmentType = "skin"
	AssessmentCognitive          domain.AssessmentType = "cognitive"
	AssessmentHealthOptimization domain.AssessmentType = "health_optimization"
	AssessmentMenopause          domain.AssessmentType = "menopause"
)

// Symptom categories used by the built-in extractors.
const (
	CategoryEnergy     = "Energy"
	CategoryHormonal   = "Hormonal"
	CategoryMood       = "Mood"
	CategoryCognitive  = "Cognitive"
	CategorySleep      = "Sleep"
	CategoryMetabolic  = "Metabolic"
	CategorySkin       = "Skin"
	CategoryVasomotor  = "Vasomotor"
	CategoryPhysical   = "Physical"
	CategoryMotivation = "Motivation"
)

func option(symptom, category string) SymptomOption {
	return SymptomOption{Symptom: symptom, Category: category}
}

// DefaultExtractors returns the extractors for every built-in assessment type.
func DefaultExtractors() []Extractor {
	q := domain.QuestionID
	return []Extractor{
		NewRuleExtractor(AssessmentHormone, q(AssessmentHormone, 2), q(AssessmentHormone, 3),
			ExtractionRule{
				Question:    q(AssessmentHormone, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"fatigue":              option("Fatigue", CategoryEnergy),
					"low_libido":           option("Low Libido", CategoryHormonal),
					"erectile_dysfunction": option("Erectile Dysfunction", CategoryHormonal),
					"mood_swings":          option("Mood Swings", CategoryMood),
					"irritability":         option("Irritability", CategoryMood),
					"weight_gain":          option("Weight Gain", CategoryMetabolic),
					"hair_loss":            option("Hair Loss", CategorySkin),
					"low_motivation":       option("Low Motivation", CategoryMotivation),
				},
			},
		),
		NewRuleExtractor(AssessmentEnergy, q(AssessmentEnergy, 2), q(AssessmentEnergy, 3),
			ExtractionRule{
				Question:    q(AssessmentEnergy, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"fatigue":            option("Fatigue", CategoryEnergy),
					"brain_fog":          option("Brain Fog", CategoryCognitive),
					"low_motivation":     option("Low Motivation", CategoryMotivation),
					"poor_concentration": option("Poor Concentration", CategoryCognitive),
					"muscle_weakness":    option("Muscle Weakness", CategoryPhysical),
				},
			},
			ExtractionRule{
				Question: q(AssessmentEnergy, 4),
				Options: map[string]SymptomOption{
					"exhausted": option("Fatigue", CategoryEnergy),
				},
			},
		),
		NewRuleExtractor(AssessmentSleep, q(AssessmentSleep, 3), q(AssessmentSleep, 4),
			ExtractionRule{
				Question: q(AssessmentSleep, 1),
				Options: map[string]SymptomOption{
					"poor":      option("Poor Sleep Quality", CategorySleep),
					"very_poor": option("Poor Sleep Quality", CategorySleep),
				},
			},
			ExtractionRule{
				Question:    q(AssessmentSleep, 2),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"trouble_falling_asleep": option("Insomnia", CategorySleep),
					"waking_at_night":        option("Insomnia", CategorySleep),
					"night_sweats":           option("Night Sweats", CategoryVasomotor),
					"daytime_fatigue":        option("Fatigue", CategoryEnergy),
				},
			},
		),
		NewRuleExtractor(AssessmentWeightLoss, "", q(AssessmentWeightLoss, 3),
			ExtractionRule{
				Question:    q(AssessmentWeightLoss, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"weight_gain":     option("Weight Gain", CategoryMetabolic),
					"slow_metabolism": option("Slow Metabolism", CategoryMetabolic),
					"sugar_cravings":  option("Sugar Cravings", CategoryMetabolic),
					"fatigue":         option("Fatigue", CategoryEnergy),
				},
			},
			ExtractionRule{
				Question: q(AssessmentWeightLoss, 2),
				Options: map[string]SymptomOption{
					"slow": option("Slow Metabolism", CategoryMetabolic),
				},
			},
		),
		NewRuleExtractor(AssessmentSkin, q(AssessmentSkin, 2), "",
			ExtractionRule{
				Question:    q(AssessmentSkin, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"acne":      option("Acne", CategorySkin),
					"dry_skin":  option("Dry Skin", CategorySkin),
					"hair_loss": option("Hair Loss", CategorySkin),
				},
			},
		),
		NewRuleExtractor(AssessmentCognitive, q(AssessmentCognitive, 2), q(AssessmentCognitive, 3),
			ExtractionRule{
				Question:    q(AssessmentCognitive, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"brain_fog":          option("Brain Fog", CategoryCognitive),
					"memory_issues":      option("Memory Issues", CategoryCognitive),
					"poor_concentration": option("Poor Concentration", CategoryCognitive),
				},
			},
			ExtractionRule{
				Question: q(AssessmentCognitive, 4),
				Options: map[string]SymptomOption{
					"poor": option("Memory Issues", CategoryCognitive),
				},
			},
		),
		NewRuleExtractor(AssessmentHealthOptimization, "", "",
			ExtractionRule{
				Question:    q(AssessmentHealthOptimization, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"anxiety":        option("Anxiety", CategoryMood),
					"depression":     option("Depression", CategoryMood),
					"fatigue":        option("Fatigue", CategoryEnergy),
					"joint_pain":     option("Joint Pain", CategoryPhysical),
					"low_motivation": option("Low Motivation", CategoryMotivation),
				},
			},
		),
		NewRuleExtractor(AssessmentMenopause, q(AssessmentMenopause, 2), q(AssessmentMenopause, 3),
			ExtractionRule{
				Question:    q(AssessmentMenopause, 1),
				MultiSelect: true,
				Options: map[string]SymptomOption{
					"hot_flashes":  option("Hot Flashes", CategoryVasomotor),
					"night_sweats": option("Night Sweats", CategoryVasomotor),
					"mood_swings":  option("Mood Swings", CategoryMood),
					"insomnia":     option("Insomnia", CategorySleep),
					"low_libido":   option("Low Libido", CategoryHormonal),
					"brain_fog":    option("Brain Fog", CategoryCognitive),
				},
			},
		),
	}
}

// NewDefaultRegistry returns a registry of the built-in extractors.
func NewDefaultRegistry() *ExtractorRegistry {
	r, err := NewExtractorRegistry(DefaultExtractors()...)
	if err != nil {
		panic(err)
	}
	return r
}
