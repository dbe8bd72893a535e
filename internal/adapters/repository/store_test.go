package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/okian/oratio/internal/adapters/repository"
	"github.com/okian/oratio/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func exerciseStore(ctx context.Context, s model.KeyValueStore) {
	Convey("When a key is missing", func() {
		_, err := s.Get(ctx, "calibration_profiles")
		So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
	})

	Convey("When a value is set and read back", func() {
		So(s.Set(ctx, "calibration_profiles", []byte(`[{"deviceId":"a"}]`)), ShouldBeNil)
		got, err := s.Get(ctx, "calibration_profiles")
		So(err, ShouldBeNil)
		So(string(got), ShouldEqual, `[{"deviceId":"a"}]`)

		Convey("And overwritten", func() {
			So(s.Set(ctx, "calibration_profiles", []byte(`[]`)), ShouldBeNil)
			got, err := s.Get(ctx, "calibration_profiles")
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, `[]`)
		})

		Convey("And deleted twice", func() {
			So(s.Delete(ctx, "calibration_profiles"), ShouldBeNil)
			So(s.Delete(ctx, "calibration_profiles"), ShouldBeNil)
			_, err := s.Get(ctx, "calibration_profiles")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("When the key is blank", func() {
		So(errors.Is(s.Set(ctx, " ", nil), repository.ErrInvalidKey), ShouldBeTrue)
		_, err := s.Get(ctx, "")
		So(errors.Is(err, repository.ErrInvalidKey), ShouldBeTrue)
		So(errors.Is(s.Delete(ctx, ""), repository.ErrInvalidKey), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		s := repository.NewMemoryStore("device")
		So(s.Scope(), ShouldEqual, "device")
		exerciseStore(context.Background(), s)

		Convey("When the caller mutates a returned slice", func() {
			So(s.Set(context.Background(), "k", []byte("abc")), ShouldBeNil)
			got, _ := s.Get(context.Background(), "k")
			got[0] = 'z'
			again, _ := s.Get(context.Background(), "k")
			So(string(again), ShouldEqual, "abc")
		})
	})
}

func TestFileStore(t *testing.T) {
	Convey("Given a file store in a temp dir", t, func() {
		s, err := repository.NewFileStore(t.TempDir(), "device")
		So(err, ShouldBeNil)
		exerciseStore(context.Background(), s)
	})
}

// fakeDB emulates the kv_store table in memory.
type fakeDB struct {
	rows    map[string][]byte
	execErr error
	stmts   []string
}

type fakeRow struct {
	value []byte
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.value
	return nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	switch {
	case strings.Contains(sql, "INSERT INTO kv_store"):
		f.rows[args[0].(string)+"/"+args[1].(string)] = args[2].([]byte)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.Contains(sql, "DELETE FROM kv_store"):
		delete(f.rows, args[0].(string)+"/"+args[1].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	v, ok := f.rows[args[0].(string)+"/"+args[1].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: v}
}

func TestPostgresStore(t *testing.T) {
	Convey("Given a Postgres store over a fake pool", t, func() {
		db := &fakeDB{rows: map[string][]byte{}}
		s, err := repository.NewPostgresStore(context.Background(), db, "device")
		So(err, ShouldBeNil)
		So(db.stmts[0], ShouldContainSubstring, "CREATE TABLE IF NOT EXISTS kv_store")
		exerciseStore(context.Background(), s)

		Convey("When two scopes share the table", func() {
			other, err := repository.NewPostgresStore(context.Background(), db, "metric-config")
			So(err, ShouldBeNil)
			So(s.Set(context.Background(), "k", []byte("device")), ShouldBeNil)
			_, err = other.Get(context.Background(), "k")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a pool that rejects the migration", t, func() {
		db := &fakeDB{rows: map[string][]byte{}, execErr: errors.New("permission denied")}
		_, err := repository.NewPostgresStore(context.Background(), db, "device")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "migrate")
	})
}
