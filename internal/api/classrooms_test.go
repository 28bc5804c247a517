package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/schoolhub-core/internal/auth"
)

type classroomListResponse struct {
	Classrooms []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"classrooms"`
	Count int `json:"count"`
}

func TestClassrooms(t *testing.T) {
	env := testServer(t)
	adminToken := env.accessToken(t, env.seedUser(t, "admin1", auth.RoleAdmin))
	teacherToken := env.accessToken(t, env.seedUser(t, "guru1", auth.RoleTeacher))

	var ids []int64
	for _, name := range []string{"X-IPA-1", "X-IPA-2"} {
		rec := env.do(t, http.MethodPost, "/api/v1/classrooms/", adminToken, map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var room struct {
			ID int64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
		ids = append(ids, room.ID)
	}

	t.Run("duplicate", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/classrooms/", adminToken, map[string]string{"name": "X-IPA-1"})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid name", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/classrooms/", adminToken, map[string]string{"name": "a-name-far-too-long-for-a-class"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("teacher can read", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/classrooms/?order_by=desc", teacherToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp classroomListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Count)
		require.Equal(t, "X-IPA-2", resp.Classrooms[0].Name)
	})

	t.Run("teacher cannot write", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/classrooms/", teacherToken, map[string]string{"name": "X-IPS-1"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(t, http.MethodDelete, "/api/v1/classrooms/"+strconv.FormatInt(ids[0], 10), teacherToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anonymous cannot read", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/classrooms/", "", nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad order", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/classrooms/?order_by=up", adminToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete unassigns students", func(t *testing.T) {
		ctx := context.Background()
		student := env.seedUser(t, "siswa1", auth.RoleStudent)
		student.Profile = &auth.StudentProfile{ClassroomID: &ids[0]}
		require.NoError(t, env.users.Update(ctx, student))

		rec := env.do(t, http.MethodDelete, "/api/v1/classrooms/"+strconv.FormatInt(ids[0], 10), adminToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		got, err := env.users.GetByID(ctx, student.ID)
		require.NoError(t, err)
		require.Nil(t, got.Profile.(*auth.StudentProfile).ClassroomID)

		rec = env.do(t, http.MethodDelete, "/api/v1/classrooms/"+strconv.FormatInt(ids[0], 10), adminToken, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.do(t, http.MethodDelete, "/api/v1/classrooms/abc", adminToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
