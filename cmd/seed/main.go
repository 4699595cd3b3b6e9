package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/database"
	"github.com/Wikid82/bastion/internal/models"
)

type seedUser struct {
	email    string
	name     string
	role     string
	password string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	fmt.Println("✓ Database migrated successfully")

	users := []seedUser{
		{email: "admin@localhost", name: "Administrator", role: models.RoleAdmin, password: "admin123"},
		{email: "demo@localhost", name: "Demo User", role: models.RoleUser, password: "demo1234"},
		{email: "auditor@localhost", name: "Auditor", role: models.RoleViewer, password: "audit1234"},
	}
	for _, su := range users {
		created, err := ensureUser(db, su)
		if err != nil {
			log.Printf("Failed to seed user %s: %v", su.email, err)
			continue
		}
		if created {
			fmt.Printf("✓ Created user: %s (%s)\n", su.email, su.role)
		} else {
			fmt.Printf("  User already exists: %s\n", su.email)
		}
	}

	fmt.Println("\n✓ Database seeding completed successfully!")
	fmt.Println("  Log in with admin@localhost / admin123 and change the password.")
}

func ensureUser(db *gorm.DB, su seedUser) (bool, error) {
	var existing models.User
	err := db.Where("email = ?", su.email).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	user := models.User{
		UUID:    uuid.NewString(),
		Email:   su.email,
		Name:    su.name,
		Role:    su.role,
		Enabled: true,
	}
	if err := user.SetPassword(su.password); err != nil {
		return false, err
	}
	return true, db.Create(&user).Error
}
