package members

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/registration"
)

type downloadSigner struct{}

func (downloadSigner) PresignEvidenceDownload(_ context.Context, key string) (string, error) {
	return "https://evidence.example.org/get/" + key, nil
}

func TestAdminSpecialVoteDecision(t *testing.T) {
	f := newFixture(t)
	admin := NewAdminHandler(f.store, f.machine, downloadSigner{}, nil)
	f.router.GET("/admin/members/:id", admin.Get)
	f.router.POST("/admin/members/:id/special-vote/decision", admin.DecideSpecialVote)

	m := f.addMember(t, "S300", models.RegionSouthern)
	decide := "/admin/members/" + m.ID.String() + "/special-vote/decision"

	status, env := f.do(t, http.MethodPost, decide, gin.H{"approved": true})
	assert.Equal(t, http.StatusConflict, status, "nothing requested yet")
	assert.Equal(t, "illegal_transition", env.Code)

	status, _ = f.do(t, http.MethodPost, "/admin/members/not-a-uuid/special-vote/decision", gin.H{"approved": true})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = f.do(t, http.MethodGet, "/admin/members/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Code)

	f.verify(t, m)
	ctx := context.Background()
	_, err := f.machine.SubmitPreferences(ctx, m.ID, registration.PreferencesInput{
		PreferredVenues: []string{"Dunedin Town Hall"},
		Willingness:     models.WillingnessNo,
	})
	require.NoError(t, err)
	_, err = f.machine.ConfirmAttendance(ctx, m.ID, false, "caring for whānau")
	require.NoError(t, err)
	key := "special-votes/" + m.ID.String() + "/letter.pdf"
	_, err = f.machine.RequestSpecialVote(ctx, m.ID, registration.SpecialVoteInput{
		Reason: "care", EvidenceKey: key, ContactPhone: "03 555 0101",
	})
	require.NoError(t, err)

	status, env = f.do(t, http.MethodGet, "/admin/members/"+m.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	var got struct {
		EvidenceURL string `json:"evidence_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "https://evidence.example.org/get/"+key, got.EvidenceURL)

	status, _ = f.do(t, http.MethodPost, decide, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = f.do(t, http.MethodPost, decide, gin.H{"approved": false})
	require.Equal(t, http.StatusOK, status)
	v := decodeView(t, env)
	assert.Equal(t, models.SpecialVoteDecided, v.SpecialVote)
	require.NotNil(t, v.SpecialVoteRequest.Approved)
	assert.False(t, *v.SpecialVoteRequest.Approved)

	status, env = f.do(t, http.MethodPost, decide, gin.H{"approved": true})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "illegal_transition", env.Code)
}
