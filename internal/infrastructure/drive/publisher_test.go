package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/aberthier/facturation-cabinet/internal/domain"
)

// fakeDriveServer simule l'API Drive v3 : listing par nom, création et
// mise à jour de média, avec compteurs d'appels.
type fakeDriveServer struct {
	created int
	updated int
	stored  *driveapi.File
	lastQ   string
}

func (f *fakeDriveServer) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		f.lastQ = r.URL.Query().Get("q")
		list := &driveapi.FileList{}
		if f.stored != nil {
			list.Files = []*driveapi.File{f.stored}
		}
		_ = json.NewEncoder(w).Encode(list)
	case http.MethodPost:
		f.created++
		f.stored = &driveapi.File{Id: "obj-1", WebViewLink: "https://drive.example/obj-1"}
		_ = json.NewEncoder(w).Encode(f.stored)
	case http.MethodPatch:
		f.updated++
		_ = json.NewEncoder(w).Encode(f.stored)
	default:
		http.Error(w, "méthode inattendue", http.StatusBadRequest)
	}
}

func TestPublish_IdempotentParNumero(t *testing.T) {
	fake := &fakeDriveServer{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	ctx := context.Background()
	svc, err := driveapi.NewService(ctx,
		option.WithEndpoint(srv.URL), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	p := NewPublisher(svc, "folder-1")
	filename := "FACT-202405-0001_martin_sophie.pdf"

	ref1, err := p.Publish(ctx, []byte("%PDF premier rendu"), "FACT-202405-0001", filename)
	require.NoError(t, err)
	assert.Equal(t, "obj-1", ref1.ID)
	assert.Equal(t, 1, fake.created)
	assert.Equal(t, 0, fake.updated)
	assert.Contains(t, fake.lastQ, "'folder-1' in parents")
	assert.Contains(t, fake.lastQ, filename)

	// Republier le même numéro écrase l'objet existant : jamais deux
	// objets pour un même numéro.
	ref2, err := p.Publish(ctx, []byte("%PDF premier rendu"), "FACT-202405-0001", filename)
	require.NoError(t, err)
	assert.Equal(t, ref1.ID, ref2.ID)
	assert.Equal(t, 1, fake.created, "pas de second objet")
	assert.Equal(t, 1, fake.updated, "mise à jour en place")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"jeton expiré", &googleapi.Error{Code: 401, Message: "invalid credentials"}, domain.ErrAuthExpired},
		{"quota permanent", &googleapi.Error{Code: 403, Message: "storageQuotaExceeded"}, domain.ErrArchiveRejected},
		{"trop de requetes", &googleapi.Error{Code: 429, Message: "rate limit"}, domain.ErrArchiveUnavailable},
		{"indisponible", &googleapi.Error{Code: 503, Message: "backend error"}, domain.ErrArchiveUnavailable},
		{"requete invalide", &googleapi.Error{Code: 400, Message: "bad request"}, domain.ErrArchiveRejected},
		{"erreur reseau", errors.New("connection reset"), domain.ErrArchiveUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "FACT-202405-0001")
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `FACT-202405-0001_martin_sophie.pdf`, escapeQuery(`FACT-202405-0001_martin_sophie.pdf`))
	assert.Equal(t, `FACT-202405-0002_d\'arcy_anne.pdf`, escapeQuery(`FACT-202405-0002_d'arcy_anne.pdf`))
}
