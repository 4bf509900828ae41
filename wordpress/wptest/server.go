// Package wptest provides an in-memory WordPress REST server for tests.
package wptest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/Nexora-Open-Source/feed-republisher/types"
)

const (
	Username = "publisher"
	Password = "app-password"
)

// ReceivedPost is a post accepted by the fake server.
type ReceivedPost struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	Slug          string `json:"slug"`
	Categories    []int  `json:"categories"`
	Tags          []int  `json:"tags"`
	DateGMT       string `json:"date_gmt"`
	FeaturedMedia int    `json:"featured_media"`
}

// ReceivedMedia is an uploaded file.
type ReceivedMedia struct {
	ID          int
	Filename    string
	ContentType string
	Size        int
}

// Server is a fake WordPress site. Failure switches may be flipped between requests.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	nextID     int
	terms      map[string]map[string]int // taxonomy -> name -> id
	posts      []ReceivedPost
	media      []ReceivedMedia
	requests   map[string]int
	postFail   bool
	termFail   bool
	mediaFail  bool
	authFail   bool
	createFail map[string]bool // term names whose creation fails
}

// NewServer starts a fake site. Close it when done.
func NewServer() *Server {
	s := &Server{
		nextID:     100,
		terms:      map[string]map[string]int{"categories": {}, "tags": {}},
		requests:   make(map[string]int),
		createFail: make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wp/v2/categories", s.handleTerms("categories"))
	mux.HandleFunc("/wp-json/wp/v2/tags", s.handleTerms("tags"))
	mux.HandleFunc("/wp-json/wp/v2/media", s.handleMedia)
	mux.HandleFunc("/wp-json/wp/v2/posts", s.handlePosts)
	s.Server = httptest.NewServer(s.authenticate(mux))
	return s
}

// Target returns a publish target pointing at the server.
func (s *Server) Target(category string) types.Target {
	return types.Target{
		BaseURL:  s.URL + "/",
		Username: Username,
		Password: Password,
		Category: category,
	}
}

// AddTerm pre-creates a term and returns its id.
func (s *Server) AddTerm(taxonomy, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.terms[taxonomy][name] = s.nextID
	return s.nextID
}

// FailPosts makes post creation answer 500.
func (s *Server) FailPosts(fail bool) { s.mu.Lock(); s.postFail = fail; s.mu.Unlock() }

// FailTerms makes every term lookup answer 500.
func (s *Server) FailTerms(fail bool) { s.mu.Lock(); s.termFail = fail; s.mu.Unlock() }

// FailMedia makes media uploads answer 500.
func (s *Server) FailMedia(fail bool) { s.mu.Lock(); s.mediaFail = fail; s.mu.Unlock() }

// FailAuth rejects every request with 401.
func (s *Server) FailAuth(fail bool) { s.mu.Lock(); s.authFail = fail; s.mu.Unlock() }

// FailCreate makes creation of the named term answer 500.
func (s *Server) FailCreate(name string) { s.mu.Lock(); s.createFail[name] = true; s.mu.Unlock() }

// Posts returns the accepted posts.
func (s *Server) Posts() []ReceivedPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedPost(nil), s.posts...)
}

// Media returns the uploaded files.
func (s *Server) Media() []ReceivedMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedMedia(nil), s.media...)
}

// TermID returns the id of a term and whether it exists.
func (s *Server) TermID(taxonomy, name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.terms[taxonomy][name]
	return id, ok
}

// Requests returns how many requests hit "METHOD /path".
func (s *Server) Requests(methodAndPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[methodAndPath]
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		authFail := s.authFail
		s.mu.Unlock()

		user, pass, ok := r.BasicAuth()
		if authFail || !ok || user != Username || pass != Password {
			writeError(w, http.StatusUnauthorized, "rest_not_logged_in", 0)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTerms(taxonomy string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.termFail {
			writeError(w, http.StatusInternalServerError, "internal_error", 0)
			return
		}

		switch r.Method {
		case http.MethodGet:
			search := strings.ToLower(r.URL.Query().Get("search"))
			found := []map[string]interface{}{}
			for name, id := range s.terms[taxonomy] {
				if strings.Contains(strings.ToLower(name), search) {
					found = append(found, map[string]interface{}{"id": id, "name": name})
				}
			}
			writeJSON(w, http.StatusOK, found)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
				writeError(w, http.StatusBadRequest, "rest_invalid_param", 0)
				return
			}
			if s.createFail[body.Name] {
				writeError(w, http.StatusInternalServerError, "internal_error", 0)
				return
			}
			if id, ok := s.terms[taxonomy][body.Name]; ok {
				writeError(w, http.StatusBadRequest, "term_exists", id)
				return
			}
			s.nextID++
			s.terms[taxonomy][body.Name] = s.nextID
			writeJSON(w, http.StatusCreated, map[string]interface{}{"id": s.nextID, "name": body.Name})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mediaFail {
		writeError(w, http.StatusInternalServerError, "upload_error", 0)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "rest_upload_no_data", 0)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	s.nextID++
	s.media = append(s.media, ReceivedMedia{
		ID:          s.nextID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        len(data),
	})
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": s.nextID})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.postFail {
		writeError(w, http.StatusInternalServerError, "internal_error", 0)
		return
	}
	var post ReceivedPost
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_json", 0)
		return
	}
	s.nextID++
	post.ID = s.nextID
	s.posts = append(s.posts, post)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": post.ID, "link": s.URL + "/" + post.Slug + "/"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, termID int) {
	body := map[string]interface{}{"code": code, "message": code}
	if termID > 0 {
		body["data"] = map[string]interface{}{"status": status, "term_id": termID}
	}
	writeJSON(w, status, body)
}
