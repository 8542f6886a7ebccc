package domain

// SampleWeekID is the week the sample ledger is seeded for.
const SampleWeekID = "week_1"

// SampleLeagueLedger returns the demo standings used to seed an empty league store.
func SampleLeagueLedger() LeagueLedger {
	return LeagueLedger{
		SampleWeekID: {
			Schools: map[string]SchoolStanding{
				"École Pilote":             {City: "Gao", TotalScore: 85, Participants: 10},
				"Lycée Askia":              {City: "Bamako", TotalScore: 120, Participants: 15},
				"École Liberté":            {City: "Sikasso", TotalScore: 70, Participants: 8},
				"Le Flamboyant":            {City: "Bamako", TotalScore: 150, Participants: 18},
				"Gao International School": {City: "Gao", TotalScore: 95, Participants: 12},
			},
			IndividualScores: []IndividualScore{
				{Player: "Aïcha", School: "Le Flamboyant", Score: 10},
				{Player: "Moussa", School: "Lycée Askia", Score: 9},
				{Player: "hamza", School: "École Pilote", Score: 9},
				{Player: "Fatoumata", School: "Gao International School", Score: 8},
				{Player: "Sékou", School: "Lycée Askia", Score: 8},
				{Player: "Mariam", School: "École Pilote", Score: 8},
			},
		},
	}
}
