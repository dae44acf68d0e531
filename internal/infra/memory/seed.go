package memory

import "bird-quiz-service/internal/domain"

// SeedCatalogID is the id of the built-in catalog.
const SeedCatalogID = "birds"

// SeedCatalog returns the built-in bird catalog used when no database is configured.
// Image URLs escape '%' as "%%", the same as rows loaded from Postgres.
func SeedCatalog() domain.Catalog {
	return domain.Catalog{
		ID: SeedCatalogID,
		Questions: []domain.Question{
			{
				Index:   0,
				Kind:    domain.SingleChoice,
				Prompt:  "Which bird is the fastest animal on the planet when diving for prey?",
				Options: []string{"Golden eagle", "Peregrine falcon", "Common swift", "Gyrfalcon"},
				Keys:    []string{"1"},
				Hint: domain.Hint{
					Text:     "It stoops on other birds at over 300 km/h.",
					ImageURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/b/b5/Peregrine_Falcon_%%28Falco_peregrinus%%29.jpg/640px-Peregrine_Falcon_%%28Falco_peregrinus%%29.jpg",
				},
			},
			{
				Index:   1,
				Kind:    domain.MultiChoice,
				Prompt:  "Which of these birds cannot fly?",
				Options: []string{"Emu", "Kiwi", "Albatross", "Kakapo", "Hoatzin"},
				Keys:    []string{"0", "1", "3"},
				Hint: domain.Hint{
					Text:     "Three of them live in Australia or New Zealand.",
					ImageURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/8/8e/Kakapo_Sirocco_1.jpg/640px-Kakapo_Sirocco_1.jpg",
				},
			},
			{
				Index:  2,
				Kind:   domain.FreeText,
				Prompt: "Name the smallest bird in the world.",
				Keys:   []string{"Bee hummingbird"},
				Hint: domain.Hint{
					Text:     "It lives in Cuba and weighs under two grams.",
					ImageURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/1/1d/Mellisuga_helenae_-Cuba-8.jpg/640px-Mellisuga_helenae_-Cuba-8.jpg",
				},
			},
			{
				Index:   3,
				Kind:    domain.SingleChoice,
				Prompt:  "Which bird has the largest wingspan of any living bird?",
				Options: []string{"Andean condor", "Wandering albatross", "Marabou stork"},
				Keys:    []string{"1"},
				Hint: domain.Hint{
					Text:     "It can glide for hours over the Southern Ocean.",
					ImageURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/1/1f/Wandering_albatross_%%28Diomedea_exulans%%29.jpg/640px-Wandering_albatross_%%28Diomedea_exulans%%29.jpg",
				},
			},
			{
				Index:   4,
				Kind:    domain.MultiChoice,
				Prompt:  "Which of these birds are corvids?",
				Options: []string{"Jackdaw", "Starling", "Eurasian jay", "Blackbird", "Rook"},
				Keys:    []string{"0", "2", "4"},
				Hint: domain.Hint{
					Text:     "Crows and their relatives.",
					ImageURL: "res/drawable/corvids.png",
				},
			},
			{
				Index:  5,
				Kind:   domain.FreeText,
				Prompt: "Which bird lays the largest egg?",
				Keys:   []string{"Ostrich", "Common ostrich"},
				Hint: domain.Hint{
					Text:     "It is also the largest living bird.",
					ImageURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/1/1c/Struthio_camelus_-_Etosha_2014_%%282%%29.jpg/640px-Struthio_camelus_-_Etosha_2014_%%282%%29.jpg",
				},
			},
			{
				Index:   6,
				Kind:    domain.SingleChoice,
				Prompt:  "Which owl was struck on the silver coins of ancient Athens?",
				Options: []string{"Little owl", "Barn owl", "Snowy owl"},
				Keys:    []string{"0"},
				Hint: domain.Hint{
					Text: "Its scientific name honours the goddess Athena.",
				},
			},
		},
	}
}
