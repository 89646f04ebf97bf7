package repository_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"kilnfire"
	"kilnfire/internal/repository"
)

func emptyScalarRows() *sqlmock.Rows { return sqlmock.NewRows([]string{"key", "value"}) }
func emptyStringRows() *sqlmock.Rows { return sqlmock.NewRows([]string{"key", "value"}) }

func TestSettingsSQLite_LoadDefaultsOnEmptyStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value FROM kv_scalars")).
		WithArgs("kiln_set").WillReturnRows(emptyScalarRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value FROM kv_strings")).
		WithArgs("kiln_set").WillReturnRows(emptyStringRows())

	repo := repository.NewSettingsSQLite(db)
	s, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.TempUnit != "C" {
		t.Fatalf("expected unit C, got %q", s.TempUnit)
	}
	if s.MaxSafeTempC != 1300 {
		t.Fatalf("expected default max 1300, got %.0f", s.MaxSafeTempC)
	}
	if !s.AlarmEnabled || !s.AutoShutdown || !s.NotificationsEnabled {
		t.Fatalf("expected default booleans true: %+v", s)
	}
	if s.APITokenSet {
		t.Fatalf("expected no API token on fresh store")
	}
}

func TestSettingsSQLite_LoadUnscalesStoredValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	scalars := sqlmock.NewRows([]string{"key", "value"}).
		AddRow("unit", int64('F')).
		AddRow("max_temp", int64(1200)).
		AddRow("alarm", int64(0)).
		AddRow("tc_offset", int64(-250)).
		AddRow("elem_watts", int64(7200)).
		AddRow("cost_kwh", int64(185))
	strs := sqlmock.NewRows([]string{"key", "value"}).
		AddRow("webhook", "https://example.test/hook").
		AddRow("api_token", "secret")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value FROM kv_scalars")).
		WithArgs("kiln_set").WillReturnRows(scalars)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value FROM kv_strings")).
		WithArgs("kiln_set").WillReturnRows(strs)

	repo := repository.NewSettingsSQLite(db)
	s, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.TempUnit != "F" {
		t.Fatalf("expected unit F, got %q", s.TempUnit)
	}
	if s.MaxSafeTempC != 1200 {
		t.Fatalf("expected 1200, got %.0f", s.MaxSafeTempC)
	}
	if s.AlarmEnabled {
		t.Fatalf("expected alarm disabled")
	}
	if s.TCOffsetC != -2.5 {
		t.Fatalf("expected tc offset -2.5, got %v", s.TCOffsetC)
	}
	if s.ElementWatts != 7200 {
		t.Fatalf("expected 7200 W, got %d", s.ElementWatts)
	}
	if s.ElectricityCostKWh != 0.185 {
		t.Fatalf("expected 0.185/kWh, got %v", s.ElectricityCostKWh)
	}
	if s.WebhookURL != "https://example.test/hook" || s.APIToken != "secret" || !s.APITokenSet {
		t.Fatalf("string settings lost: %+v", s)
	}
}

func TestSettingsSQLite_SaveStoresScaledIntegers(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	upsertScalar := regexp.QuoteMeta("INSERT INTO kv_scalars")
	upsertString := regexp.QuoteMeta("INSERT INTO kv_strings")

	expect := []struct {
		key string
		val int64
	}{
		{"unit", int64('C')},
		{"max_temp", 1250},
		{"alarm", 1},
		{"autoshut", 0},
		{"notif", 1},
		{"tc_offset", 150},
		{"elem_watts", 6000},
		{"cost_kwh", 220},
	}
	for _, e := range expect {
		mock.ExpectExec(upsertScalar).WithArgs("kiln_set", e.key, e.val).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectExec(upsertString).WithArgs("kiln_set", "webhook", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsertString).WithArgs("kiln_set", "api_token", "tok").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := repository.NewSettingsSQLite(db)
	err = repo.Save(context.Background(), kilnfire.KilnSettings{
		TempUnit:             "C",
		MaxSafeTempC:         1250,
		AlarmEnabled:         true,
		AutoShutdown:         false,
		NotificationsEnabled: true,
		TCOffsetC:            1.5,
		APIToken:             "tok",
		ElementWatts:         6000,
		ElectricityCostKWh:   0.22,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
