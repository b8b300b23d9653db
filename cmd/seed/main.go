package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jaswdr/faker"

	"aula/pkg/config"
	"aula/pkg/models"
	"aula/pkg/services"
	"aula/pkg/storage"
	"aula/pkg/utils"
)

var categories = []models.Category{
	models.CategoryResumen,
	models.CategoryTarea,
	models.CategoryImportante,
	models.CategoryGeneral,
}

func main() {
	count := flag.Int("n", 10, "number of notes to generate")
	recordings := flag.Int("recordings", 3, "number of recordings to generate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store := storage.NewObjectStore(cfg.DatabasePath())
	if err := store.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open object store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	notes := services.NewNoteService(store)
	if err := notes.LoadNotes(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load notes: %v\n", err)
		os.Exit(1)
	}

	fake := faker.New()

	classes := []string{"BIO101", "HIST200", "MATH150", "CHEM110"}
	for i := 0; i < *count; i++ {
		professor := models.Professor{
			Name:  "Dr. " + fake.Person().LastName(),
			Phone: fake.Phone().Number(),
			Email: fake.Internet().Email(),
		}
		note, err := notes.CreateNote(
			fake.Lorem().Sentence(4),
			classes[i%len(classes)],
			professor,
			fake.Lorem().Paragraph(3),
			categories[i%len(categories)],
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create note: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated note %s (%s)\n", note.ID, note.ClassName)
	}

	for i := 0; i < *recordings; i++ {
		rec := &models.Recording{
			ID:            "rec-" + utils.GenerateShortUUID(),
			Date:          utils.NowMillis(),
			RawTranscript: fake.Lorem().Paragraph(2),
			Processed:     true,
			Summary:       fake.Lorem().Sentence(8),
			KeyPoints:     fake.Lorem().Words(3),
			Topics:        fake.Lorem().Words(2),
		}
		if err := store.PutRecording(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to store recording: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated recording %s\n", rec.ID)
	}
}
