package services

import (
	"errors"
	"fmt"

	"github.com/mfg-ops/ordrefab/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeedCatalog inserts the demo production lines and products. Existing rows
// (matched by name) are left alone, so it is safe to run on every start.
func SeedCatalog(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	lines := []models.ProductionLine{
		{Name: "Ligne A - Assemblage"},
		{Name: "Ligne B - Usinage"},
		{Name: "Ligne C - Peinture"},
	}

	lineIDs := make(map[string]uint, len(lines))
	for _, line := range lines {
		var existing models.ProductionLine
		err := db.Where("name = ?", line.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&line).Error; err != nil {
				return fmt.Errorf("failed to create production line %s: %w", line.Name, err)
			}
			logger.Info("production line created", zap.String("name", line.Name))
			existing = line
		} else if err != nil {
			return fmt.Errorf("failed to check existing production line %s: %w", line.Name, err)
		}
		lineIDs[existing.Name] = existing.ID
	}

	products := []struct {
		name, kind, line string
	}{
		{"Chassis acier", "structure", "Ligne A - Assemblage"},
		{"Arbre de transmission", "mecanique", "Ligne B - Usinage"},
		{"Carter aluminium", "mecanique", "Ligne B - Usinage"},
		{"Panneau laque", "finition", "Ligne C - Peinture"},
	}
	for _, p := range products {
		var existing models.Product
		err := db.Where("name = ?", p.name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lineID := lineIDs[p.line]
			product := models.Product{Name: p.name, Type: p.kind, ProductionLineID: &lineID}
			if err := db.Create(&product).Error; err != nil {
				return fmt.Errorf("failed to create product %s: %w", p.name, err)
			}
			logger.Info("product created", zap.String("name", p.name))
		} else if err != nil {
			return fmt.Errorf("failed to check existing product %s: %w", p.name, err)
		}
	}

	logger.Info("catalog seeded")
	return nil
}
