package node

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexedwards/flow"

	"github.com/labkit/workcell/model/protocol"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 32 << 20

// Handler returns the node's HTTP surface:
//
//	POST /action    - run one action under the action lock (409 when busy)
//	GET  /state     - current status and error
//	GET  /about     - module capability descriptor
//	GET  /resources - resource pools
func (n *Node) Handler() http.Handler {
	mux := flow.New()
	mux.HandleFunc("/action", n.handleAction, http.MethodPost)
	mux.HandleFunc("/state", n.handleState, http.MethodGet)
	mux.HandleFunc("/about", n.handleAbout, http.MethodGet)
	mux.HandleFunc("/resources", n.handleResources, http.MethodGet)
	return mux
}

func (n *Node) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.Report())
}

func (n *Node) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.About())
}

func (n *Node) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"resources": n.resourcePools})
}

func (n *Node) handleAction(w http.ResponseWriter, r *http.Request) {
	request, err := n.decodeActionRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Failed(err.Error(), ""))
		return
	}

	response, err := n.Execute(r.Context(), request)
	if err != nil {
		if IsConflict(err) {
			n.logger.Warn("action rejected, lock unavailable", "node", n.name, "action", request.Name)
			writeJSON(w, http.StatusConflict, protocol.Failed(err.Error(), err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, protocol.Failed(err.Error(), ""))
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// decodeActionRequest builds an ActionRequest from query parameters and any
// multipart file attachments, which are spooled to a temp directory and
// exposed to the handler by local path.
func (n *Node) decodeActionRequest(r *http.Request) (*protocol.ActionRequest, error) {
	handle := r.URL.Query().Get("action_handle")
	if handle == "" {
		return nil, fmt.Errorf("missing action_handle")
	}
	request := &protocol.ActionRequest{Name: handle}

	if vars := r.URL.Query().Get("action_vars"); vars != "" {
		if err := json.Unmarshal([]byte(vars), &request.Args); err != nil {
			return nil, fmt.Errorf("malformed action_vars: %w", err)
		}
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return nil, fmt.Errorf("malformed multipart content: %w", err)
		}
		if r.MultipartForm != nil {
			dir, err := os.MkdirTemp("", n.name+"-files-")
			if err != nil {
				return nil, err
			}
			request.Files = map[string]string{}
			for _, headers := range r.MultipartForm.File {
				for _, header := range headers {
					local, err := spoolUpload(header, dir)
					if err != nil {
						return nil, err
					}
					request.Files[header.Filename] = local
				}
			}
		}
	}
	return request, nil
}

func spoolUpload(header *multipart.FileHeader, dir string) (string, error) {
	source, err := header.Open()
	if err != nil {
		return "", err
	}
	defer source.Close()
	target, err := os.CreateTemp(dir, "upload-")
	if err != nil {
		return "", err
	}
	defer target.Close()
	if _, err := io.Copy(target, source); err != nil {
		return "", err
	}
	return filepath.Clean(target.Name()), nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
