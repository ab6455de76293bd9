//cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/leadpilot/crm-backend/internal/db"
	"github.com/leadpilot/crm-backend/internal/model"
	"github.com/leadpilot/crm-backend/internal/repository"
	"github.com/leadpilot/crm-backend/internal/service"
)

func main() {
	conn, err := db.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	seedFiles := []string{
		"seed/schema.sql",
		"seed/templates.sql",
		"seed/leads.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}

		_, err = conn.Exec(string(content))
		if err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	// Bulk demo leads go through the batch processor so the seeder exercises
	// the same chunk-and-delay path Prepare uses.
	leadRepo := &repository.LeadRepository{DB: conn}
	demo := demoLeads(200)

	err = service.ProcessBatch(demo, func(batch []*model.Lead) error {
		for _, lead := range batch {
			if err := leadRepo.Create(lead); err != nil {
				return err
			}
		}
		return nil
	}, service.BatchOptions{
		OnBatchComplete: func(batchIndex, batchCount int) {
			fmt.Printf("Inserted demo lead batch %d/%d\n", batchIndex+1, batchCount)
		},
	})
	if err != nil {
		log.Fatalf("failed to insert demo leads: %v", err)
	}

	fmt.Println("Database seeding completed successfully!")
}

func demoLeads(n int) []*model.Lead {
	niches := []string{"clinica", "restaurante", "academia", "imobiliaria"}
	cities := []string{"Sao Paulo", "Curitiba", "Belo Horizonte", "Recife"}

	leads := make([]*model.Lead, 0, n)
	for i := 0; i < n; i++ {
		leads = append(leads, &model.Lead{
			Name:     fmt.Sprintf("Demo Lead %d", i+1),
			Business: fmt.Sprintf("Business %d", i+1),
			Phone:    fmt.Sprintf("+55119%08d", i+1),
			City:     cities[i%len(cities)],
			Niche:    niches[i%len(niches)],
			Status:   model.LeadStatusNew,
			Score:    i % 11,
		})
	}
	return leads
}
