package app

import (
	"path/filepath"
	"testing"

	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/models"
)

func TestHasAdminInitialized(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "lims-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	initialized, err := HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false before migrate")
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	technician := models.User{Email: "tech@lab.test", Password: "hashed", UserType: models.UserTypeTechnician, IsActive: true}
	if errCreate := conn.Create(&technician).Error; errCreate != nil {
		t.Fatalf("create technician: %v", errCreate)
	}
	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after migrate: %v", err)
	}
	if initialized {
		t.Fatalf("expected initialized=false without an administrator")
	}

	admin := models.User{Email: "admin@lab.test", Password: "hashed", UserType: models.UserTypeAdmin, IsActive: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	initialized, err = HasAdminInitialized(conn)
	if err != nil {
		t.Fatalf("HasAdminInitialized after seed: %v", err)
	}
	if !initialized {
		t.Fatalf("expected initialized=true after admin created")
	}
}
