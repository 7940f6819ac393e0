/*
 * Copyright 2026 crudkit.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package accessor_test

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/crudkit/crudkit/accessor"
	"github.com/crudkit/crudkit/database"
	"github.com/crudkit/crudkit/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64            `bun:"id,pk,autoincrement"`
	Username  string           `bun:"username,notnull,unique"`
	Email     string           `bun:"email,notnull,unique"`
	FullName  *string          `bun:"full_name"`
	Bio       *string          `bun:"bio"`
	IsActive  bool             `bun:"is_active,nullzero,notnull,default:true"`
	Metadata  types.JsonObject `bun:"metadata"`
	CreatedAt time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt *time.Time       `bun:"updated_at"`
}

type UserCreate struct {
	Username string
	Email    string
	FullName *string
	Bio      *string
	Metadata types.JsonObject
}

type UserUpdate struct {
	Username *string
	Email    *string
	FullName *string
	Bio      *string
	IsActive *bool
}

type UserFilter struct {
	Username  *string
	Email     *string
	IsActive  *bool
	Usernames []string `bun:"username"`
	Nickname  *string  // not a users column, must be ignored
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	// A named in-memory database per test keeps tests isolated while letting
	// pooled connections share the same data.
	dsn := fmt.Sprintf("file:%x?mode=memory&cache=shared", md5.Sum([]byte(t.Name())))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*User)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func newUserAccessor(t *testing.T, db bun.IDB) *accessor.Accessor[User, UserCreate, UserUpdate, UserFilter] {
	t.Helper()
	binding, err := accessor.Bind[User, UserCreate, UserUpdate, UserFilter]()
	require.NoError(t, err)
	acc, err := binding.NewAccessor(db, "id")
	require.NoError(t, err)
	return acc
}

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func seedUsers(t *testing.T, acc *accessor.Accessor[User, UserCreate, UserUpdate, UserFilter]) []*User {
	t.Helper()
	ctx := context.Background()
	var out []*User
	for _, in := range []UserCreate{
		{Username: "a", Email: "a@x.com", Bio: strptr("first")},
		{Username: "b", Email: "b@x.com"},
		{Username: "c", Email: "c@x.com", FullName: strptr("Cee")},
	} {
		u, err := acc.Create(ctx, &in)
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestCreateMaterializesGeneratedFields(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()

	created, err := acc.Create(ctx, &UserCreate{
		Username: "a",
		Email:    "a@x.com",
		Metadata: types.JsonObject{"team": "core"},
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotZero(t, created.ID)
	assert.Equal(t, "a", created.Username)
	assert.Equal(t, "a@x.com", created.Email)
	assert.True(t, created.IsActive, "is_active must come back with its column default")
	assert.False(t, created.CreatedAt.IsZero(), "created_at must be storage-generated")
	assert.Nil(t, created.Bio)

	fetched, err := acc.ReadByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Username, fetched.Username)
	assert.Equal(t, created.Email, fetched.Email)
	assert.Equal(t, "core", fetched.Metadata["team"])
}

func TestCreateStorageErrorPropagates(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()

	_, err := acc.Create(ctx, &UserCreate{Username: "a", Email: "a@x.com"})
	require.NoError(t, err)

	// Same unique username again: the constraint violation must surface
	// verbatim, classifiable by the storage error classifier.
	_, err = acc.Create(ctx, &UserCreate{Username: "a", Email: "other@x.com"})
	require.Error(t, err)
	is, class := database.IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, database.DuplicateKeyErr, class)
}

func TestReadByIDAbsenceIsSoft(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)

	u, err := acc.ReadByID(context.Background(), int64(12345))
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestReadFilters(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()
	seedUsers(t, acc)

	t.Run("nil query returns everything", func(t *testing.T) {
		all, err := acc.Read(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("unset filter equals no filter", func(t *testing.T) {
		all, err := acc.Read(ctx, nil)
		require.NoError(t, err)
		filtered, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{}})
		require.NoError(t, err)
		assert.Equal(t, len(all), len(filtered))
	})

	t.Run("equality predicate", func(t *testing.T) {
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{Username: strptr("a")}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].Username)
	})

	t.Run("membership predicate", func(t *testing.T) {
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{Usernames: []string{"a", "b"}}})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("empty membership matches nothing", func(t *testing.T) {
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{Usernames: []string{}}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("predicates are ANDed", func(t *testing.T) {
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{
			Username: strptr("a"),
			Email:    strptr("b@x.com"),
		}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown filter fields are ignored", func(t *testing.T) {
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{Nickname: strptr("ghost")}})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("boolean filter excludes non-matching rows", func(t *testing.T) {
		_, err := acc.Update(ctx, int64(1), &UserUpdate{IsActive: boolptr(false)})
		require.NoError(t, err)
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{IsActive: boolptr(true)}})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		for _, u := range got {
			assert.True(t, u.IsActive)
		}
	})

	t.Run("no matches is an empty slice", func(t *testing.T) {
		got, err := acc.Read(ctx, &accessor.Query[UserFilter]{Filter: &UserFilter{Username: strptr("nobody")}})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestReadLimitOffset(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()
	seedUsers(t, acc)

	limited, err := acc.Read(ctx, &accessor.Query[UserFilter]{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	skipped, err := acc.Read(ctx, &accessor.Query[UserFilter]{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, skipped, 2)
	assert.NotEqual(t, limited[0].ID, skipped[0].ID)

	tail, err := acc.Read(ctx, &accessor.Query[UserFilter]{Offset: 2})
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	rest, err := acc.Read(ctx, &accessor.Query[UserFilter]{Offset: 1})
	require.NoError(t, err)
	assert.Len(t, rest, 2, "offset without limit must skip and return the remainder")
}

func TestUpdate(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()
	users := seedUsers(t, acc)

	t.Run("assigns only the set fields", func(t *testing.T) {
		before := users[0]
		updated, err := acc.Update(ctx, before.ID, &UserUpdate{Bio: strptr("new")})
		require.NoError(t, err)
		require.NotNil(t, updated)
		require.NotNil(t, updated.Bio)
		assert.Equal(t, "new", *updated.Bio)
		assert.Equal(t, before.Username, updated.Username)
		assert.Equal(t, before.Email, updated.Email)
		assert.Equal(t, before.IsActive, updated.IsActive)

		fetched, err := acc.ReadByID(ctx, before.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched.Bio)
		assert.Equal(t, "new", *fetched.Bio)
	})

	t.Run("empty payload is a validation error", func(t *testing.T) {
		_, err := acc.Update(ctx, users[1].ID, &UserUpdate{})
		require.ErrorIs(t, err, accessor.ErrNothingToUpdate)
	})

	t.Run("empty payload fails even for a missing id", func(t *testing.T) {
		_, err := acc.Update(ctx, int64(999999), &UserUpdate{})
		require.ErrorIs(t, err, accessor.ErrNothingToUpdate)
	})

	t.Run("missing target is a hard not-found", func(t *testing.T) {
		_, err := acc.Update(ctx, int64(999999), &UserUpdate{Bio: strptr("x")})
		require.ErrorIs(t, err, accessor.ErrNotFound)
	})

	t.Run("explicit false is distinguishable from unset", func(t *testing.T) {
		updated, err := acc.Update(ctx, users[2].ID, &UserUpdate{IsActive: boolptr(false)})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
	})
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()
	users := seedUsers(t, acc)

	t.Run("returns a pre-removal snapshot", func(t *testing.T) {
		snapshot, err := acc.Delete(ctx, users[0].ID)
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Equal(t, users[0].Username, snapshot.Username)

		gone, err := acc.ReadByID(ctx, users[0].ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})

	t.Run("missing target is benign", func(t *testing.T) {
		snapshot, err := acc.Delete(ctx, int64(999999))
		require.NoError(t, err)
		assert.Nil(t, snapshot)
	})

	t.Run("deleting twice is benign", func(t *testing.T) {
		first, err := acc.Delete(ctx, users[1].ID)
		require.NoError(t, err)
		require.NotNil(t, first)
		second, err := acc.Delete(ctx, users[1].ID)
		require.NoError(t, err)
		assert.Nil(t, second)
	})
}

func TestReadPage(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()
	seedUsers(t, acc)

	page, err := acc.ReadPage(ctx, types.NewPageRequest(1, 2, (*UserFilter)(nil), []string{"username ASC"}))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].Username)
	assert.Equal(t, "b", page.Items[1].Username)

	page2, err := acc.ReadPage(ctx, types.NewPageRequest(2, 2, (*UserFilter)(nil), []string{"username ASC"}))
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, "c", page2.Items[0].Username)

	filtered, err := acc.ReadPage(ctx, types.NewPageRequestWithFilter(1, 10, &UserFilter{Username: strptr("b")}))
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)

	defaulted, err := acc.ReadPage(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, defaulted.Total, "nil request reads the default first page")
	assert.Len(t, defaulted.Items, 3)
}

// Full lifecycle as one scenario: create, read back, partial update, delete.
func TestUserLifecycle(t *testing.T) {
	db := newTestDB(t)
	acc := newUserAccessor(t, db)
	ctx := context.Background()

	created, err := acc.Create(ctx, &UserCreate{Username: "a", Email: "a@x.com"})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.IsActive)

	fetched, err := acc.ReadByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", fetched.Username)
	assert.Equal(t, "a@x.com", fetched.Email)

	updated, err := acc.Update(ctx, created.ID, &UserUpdate{Bio: strptr("new")})
	require.NoError(t, err)
	require.NotNil(t, updated.Bio)
	assert.Equal(t, "new", *updated.Bio)
	assert.Equal(t, fetched.Username, updated.Username)
	assert.Equal(t, fetched.Email, updated.Email)

	_, err = acc.Delete(ctx, created.ID)
	require.NoError(t, err)
	absent, err := acc.ReadByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestAccessorOverTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	binding, err := accessor.Bind[User, UserCreate, UserUpdate, UserFilter]()
	require.NoError(t, err)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		acc, err := binding.NewAccessor(tx, "id")
		if err != nil {
			return err
		}
		if _, err := acc.Create(ctx, &UserCreate{Username: "tx", Email: "tx@x.com"}); err != nil {
			return err
		}
		got, err := acc.Read(ctx, nil)
		if err != nil {
			return err
		}
		assert.Len(t, got, 1)
		return nil
	})
	require.NoError(t, err)

	acc := newUserAccessor(t, db)
	all, err := acc.Read(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1, "committed transaction must be visible afterwards")
}
