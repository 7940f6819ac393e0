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

package crudkit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/crudkit/crudkit"
	"github.com/crudkit/crudkit/accessor"
	"github.com/crudkit/crudkit/database"
	"github.com/crudkit/crudkit/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type Note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Title     string    `bun:"title,notnull"`
	Body      *string   `bun:"body"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type NoteCreate struct {
	Title string
	Body  *string
}

type NoteUpdate struct {
	Title *string
	Body  *string
}

type NoteFilter struct {
	Title  *string
	Titles []string `bun:"title"`
}

func initTestDB(t *testing.T) {
	t.Helper()
	database.RegisterModel(database.NewModelAdapter((*Note)(nil), 1))

	cfg := &database.Config{
		ConnectionConfig: *database.DefaultConnectionConfig(),
		BootstrapConfig:  database.BootstrapConfig{CreateTablesOnStartup: true},
	}
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = filepath.Join(t.TempDir(), "crudkit_service_test")
	cfg.ConnectionConfig.HealthCheckInterval = 0

	_, err := database.InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
}

func TestServiceLifecycle(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	svc := crudkit.NewService[Note, NoteCreate, NoteUpdate, NoteFilter]("id")

	body := "remember the milk"
	created, err := svc.Create(ctx, &NoteCreate{Title: "groceries", Body: &body})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "groceries", fetched.Title)

	newTitle := "errands"
	updated, err := svc.Update(ctx, created.ID, &NoteUpdate{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "errands", updated.Title)
	require.NotNil(t, updated.Body)
	assert.Equal(t, body, *updated.Body)

	listed, err := svc.List(ctx, &accessor.Query[NoteFilter]{Filter: &NoteFilter{Title: &newTitle}})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	page, err := svc.Page(ctx, types.NewDefaultPageRequest[NoteFilter](1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	async, err := svc.Async()
	require.NoError(t, err)
	second, err := async.Create(ctx, &NoteCreate{Title: "async"}).Await(ctx)
	require.NoError(t, err)
	assert.NotZero(t, second.ID)

	snapshot, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "errands", snapshot.Title)

	gone, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	health := database.GetHealthStatus(ctx)
	assert.True(t, health.Healthy)
}

func TestServiceSurfacesBindingErrors(t *testing.T) {
	initTestDB(t)

	bad := crudkit.NewService[Note, NoteCreate, NoteUpdate, NoteFilter]("uuid")
	_, err := bad.Get(context.Background(), int64(1))
	require.ErrorIs(t, err, accessor.ErrUnknownIdentifier)
}
