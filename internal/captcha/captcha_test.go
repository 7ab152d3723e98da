package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

func TestRecaptchaVerifier(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		body     string
		status   int
		wantErr  bool
		rejected bool
	}{
		{name: "accepted", token: "good", body: `{"success": true}`, status: http.StatusOK},
		{name: "rejected", token: "bad", body: `{"success": false, "error-codes": ["invalid-input-response"]}`, status: http.StatusOK, wantErr: true, rejected: true},
		{name: "missing token", token: "", wantErr: true, rejected: true},
		{name: "upstream failure", token: "good", body: `oops`, status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "secret", r.PostForm.Get("secret"))
				assert.Equal(t, tt.token, r.PostForm.Get("response"))
				assert.Equal(t, "10.0.0.1", r.PostForm.Get("remoteip"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			v := NewRecaptchaVerifier("secret", server.URL, 0)
			err := v.Verify(context.Background(), tt.token, "10.0.0.1")

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.rejected, errors.Is(err, domain.ErrCaptchaRejected))
		})
	}
}
