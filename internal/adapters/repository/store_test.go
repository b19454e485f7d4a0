package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/facegate/internal/adapters/repository"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func ptr(s string) *string { return &s }

func sampleRecords() []model.DayRecord {
	return []model.DayRecord{
		{Identity: "alice", Date: "2026-03-01", EntryTime: ptr("09:00:00"), ExitTime: ptr("18:00:00")},
		{Identity: "bob", Date: "2026-03-01", EntryTime: ptr("09:15:00")},
		{Identity: "alice", Date: "2026-03-02", EntryTime: ptr("08:55:10")},
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a file store in a temp dir", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "attendance.json")
		s := repository.NewFileStore(path)

		Convey("When the file does not exist", func() {
			recs, err := s.Load(ctx)

			Convey("Then it should load an empty ledger", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
			})
		})

		Convey("When records are saved and loaded", func() {
			So(s.Save(ctx, sampleRecords()), ShouldBeNil)
			recs, err := s.Load(ctx)

			Convey("Then they should round-trip exactly", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldResemble, sampleRecords())
			})

			Convey("And unset times should be written as null", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldStartWith, "{\n  \"records\": [")
				So(string(data), ShouldContainSubstring, `"exit_time": null`)
			})

			Convey("And saving again should replace the content", func() {
				So(s.Save(ctx, sampleRecords()[:1]), ShouldBeNil)
				recs, err := s.Load(ctx)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
			})
		})

		Convey("When the file is blank", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o750), ShouldBeNil)
			So(os.WriteFile(path, []byte("\n  \n"), 0o600), ShouldBeNil)
			recs, err := s.Load(ctx)
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})

		Convey("When the file is corrupt", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o750), ShouldBeNil)
			So(os.WriteFile(path, []byte(`{"records": [`), 0o600), ShouldBeNil)
			_, err := s.Load(ctx)
			So(errors.Is(err, repository.ErrCorrupt), ShouldBeTrue)
		})

		Convey("When an empty ledger is saved", func() {
			So(s.Save(ctx, nil), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "{\n  \"records\": []\n}\n")
		})

		So(s.Name(), ShouldEqual, repository.BackendJSON)
	})
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sqlite store in a temp file", t, func() {
		dsn := filepath.Join(t.TempDir(), "attendance.db")
		s, err := repository.NewSQLiteStore(ctx, dsn)
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		Convey("When nothing was saved", func() {
			recs, err := s.Load(ctx)
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})

		Convey("When records are saved and loaded", func() {
			So(s.Save(ctx, sampleRecords()), ShouldBeNil)
			recs, err := s.Load(ctx)

			Convey("Then rows should come back ordered by date then identity", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldResemble, sampleRecords())
			})
		})

		Convey("When a record gains its exit time", func() {
			So(s.Save(ctx, sampleRecords()), ShouldBeNil)
			updated := sampleRecords()
			updated[1].ExitTime = ptr("17:30:00")
			So(s.Save(ctx, updated), ShouldBeNil)

			recs, err := s.Load(ctx)

			Convey("Then the row should be updated in place", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 3)
				So(*recs[1].ExitTime, ShouldEqual, "17:30:00")
			})
		})

		Convey("When the database is reopened", func() {
			So(s.Save(ctx, sampleRecords()), ShouldBeNil)
			So(s.Close(), ShouldBeNil)

			again, err := repository.NewSQLiteStore(ctx, dsn)
			So(err, ShouldBeNil)
			recs, err := again.Load(ctx)
			So(err, ShouldBeNil)
			So(recs, ShouldResemble, sampleRecords())
			So(again.Close(), ShouldBeNil)
		})

		So(s.Name(), ShouldEqual, repository.BackendSQLite)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	Convey("Given backend names", t, func() {
		dir := t.TempDir()

		s, err := repository.Open(ctx, "json", filepath.Join(dir, "a.json"), "")
		So(err, ShouldBeNil)
		So(s.Name(), ShouldEqual, repository.BackendJSON)

		s, err = repository.Open(ctx, "sqlite", "", filepath.Join(dir, "a.db"))
		So(err, ShouldBeNil)
		So(s.Name(), ShouldEqual, repository.BackendSQLite)
		So(s.Close(), ShouldBeNil)

		_, err = repository.Open(ctx, "postgres", "", "")
		So(errors.Is(err, repository.ErrOpen), ShouldBeTrue)
	})
}
