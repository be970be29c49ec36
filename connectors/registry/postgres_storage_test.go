// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"cidadao/platform/connectors/base"
)

func TestPostgresStorage_SaveSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorageWithDB(db)

	mock.ExpectExec("INSERT INTO source_registry").
		WithArgs("portal-federal", "portal", "federal", sqlmock.AnyArg(), "https://api.portaldatransparencia.gov.br/api-de-dados",
			sqlmock.AnyArg(), sqlmock.AnyArg(), int64(30000), 3, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &base.SourceConfig{
		Name:         "portal-federal",
		Type:         "portal",
		Jurisdiction: "federal",
		Categories:   []string{"contracts"},
		BaseURL:      "https://api.portaldatransparencia.gov.br/api-de-dados",
		Credentials:  map[string]string{"api_key": "k"},
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		Priority:     10,
	}
	if err := storage.SaveSource(context.Background(), "portal-federal", cfg); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStorage_GetSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorageWithDB(db)

	rows := sqlmock.NewRows([]string{
		"name", "type", "jurisdiction", "categories", "base_url",
		"credentials", "options", "timeout_ms", "max_retries", "priority",
	}).AddRow("ibge", "ibge", "federal", `["demographics"]`, "https://servicodados.ibge.gov.br/api",
		`{}`, `{"health_path":"/v1/localidades/regioes"}`, int64(15000), 2, 30)

	mock.ExpectQuery("SELECT name, type, jurisdiction").
		WithArgs("ibge").
		WillReturnRows(rows)

	cfg, err := storage.GetSource(context.Background(), "ibge")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if cfg.Type != "ibge" || cfg.Timeout != 15*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0] != "demographics" {
		t.Errorf("unexpected categories: %v", cfg.Categories)
	}
	if cfg.Options["health_path"] != "/v1/localidades/regioes" {
		t.Errorf("unexpected options: %v", cfg.Options)
	}
}

func TestPostgresStorage_GetSource_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorageWithDB(db)
	mock.ExpectQuery("SELECT name, type, jurisdiction").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := storage.GetSource(context.Background(), "missing"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestPostgresStorage_ListSources(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorageWithDB(db)
	mock.ExpectQuery("SELECT name FROM source_registry").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ibge").AddRow("portal-federal"))

	names, err := storage.ListSources(context.Background())
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(names) != 2 || names[0] != "ibge" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestPostgresStorage_DeleteSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorageWithDB(db)
	mock.ExpectExec("DELETE FROM source_registry").
		WithArgs("ckan-sp").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := storage.DeleteSource(context.Background(), "ckan-sp"); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
}
