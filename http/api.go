package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aukilabs/ehwaz/featureflag"
	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
	"github.com/aukilabs/ehwaz/scene"
	"github.com/aukilabs/ehwaz/viewer"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/mux"
	"github.com/segmentio/encoding/json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	ErrTypeBadRequest     = "bad_request"
	ErrTypeViewerDisabled = "viewer_disabled"
)

const contentTypeProtobuf = "application/x-protobuf"

// API serves the spaces of a store over HTTP.
type API struct {
	Spaces *models.SpaceStore

	// The duration of a space frame. The octree of a space is updated once
	// per frame.
	FrameDuration time.Duration

	// The region of spaces created without one.
	Region octree.Region

	// The octree settings of spaces created without their own.
	Octree octree.Config

	FeatureFlags featureflag.FeatureFlag
}

// Handler returns the API routes. Viewer connections are closed when the
// context is canceled.
func (a *API) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/spaces", a.handleCreateSpace).Methods(http.MethodPost)
	r.HandleFunc("/spaces", a.handleListSpaces).Methods(http.MethodGet)

	s := r.PathPrefix("/spaces/{space:[0-9]+}").Subrouter()
	s.HandleFunc("", a.handleGetSpace).Methods(http.MethodGet)
	s.HandleFunc("", a.handleDeleteSpace).Methods(http.MethodDelete)
	s.HandleFunc("/entities", a.handleListEntities).Methods(http.MethodGet)
	s.HandleFunc("/entities", a.handleAddEntity).Methods(http.MethodPost)
	s.HandleFunc("/entities/{entity:[0-9]+}", a.handleGetEntity).Methods(http.MethodGet)
	s.HandleFunc("/entities/{entity:[0-9]+}", a.handleRemoveEntity).Methods(http.MethodDelete)
	s.HandleFunc("/entities/{entity:[0-9]+}/pose", a.handleUpdatePose).Methods(http.MethodPut)
	s.HandleFunc("/entities/{entity:[0-9]+}/region", a.handleLocateEntity).Methods(http.MethodGet)
	s.HandleFunc("/regions", a.handleRegionsAt).Methods(http.MethodGet)
	s.HandleFunc("/tree", a.handleTree).Methods(http.MethodGet)
	s.HandleFunc("/update", a.handleUpdate).Methods(http.MethodPost)
	s.HandleFunc("/viewer", a.handleViewer(ctx)).Methods(http.MethodGet)

	return r
}

// CreateSpace creates a space, adds it to the store and starts its frames.
func (a *API) CreateSpace(region octree.Region, conf octree.Config) (*models.Space, error) {
	a.FeatureFlags.IfSet(featureflag.FlagStrictMoveNotifications, func() {
		conf.StrictMoves = true
	})
	a.FeatureFlags.IfNotSet(featureflag.FlagDisableViewer, func() {
		conf.Visualizer = &viewer.Hub{}
	})

	id := a.Spaces.NewID()
	space, err := models.NewSpace(id, region, conf, a.FrameDuration)
	if err != nil {
		a.Spaces.ReleaseID(id)
		return nil, err
	}

	a.Spaces.Add(space)
	go space.StartDispatchFrames()
	return space, nil
}

type spaceRequest struct {
	Region   *octree.Region `json:"region"`
	Capacity int            `json:"capacity"`
	MaxDepth int            `json:"max_depth"`
}

type spaceResponse struct {
	ID       uint32        `json:"id"`
	UUID     string        `json:"uuid"`
	Region   octree.Region `json:"region"`
	Entities int           `json:"entities"`
	Viewer   bool          `json:"viewer"`
}

func newSpaceResponse(s *models.Space) spaceResponse {
	_, hasViewer := s.Visualizer().(*viewer.Hub)

	return spaceResponse{
		ID:       s.ID,
		UUID:     s.UUID,
		Region:   s.Region(),
		Entities: s.EntityCount(),
		Viewer:   hasViewer,
	}
}

type entityResponse struct {
	ID   uint32      `json:"id"`
	Pose models.Pose `json:"pose"`
}

func newEntityResponse(e *models.Entity) entityResponse {
	return entityResponse{
		ID:   e.ID,
		Pose: e.Pose(),
	}
}

type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (a *API) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req spaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	region := a.Region
	if req.Region != nil {
		region = *req.Region
	}

	s := scene.Scene{
		Region:   region,
		Capacity: req.Capacity,
		MaxDepth: req.MaxDepth,
	}
	if err := s.Validate(); err != nil {
		writeError(w, errors.New("invalid space").
			WithType(ErrTypeBadRequest).
			Wrap(err))
		return
	}

	space, err := a.CreateSpace(region, s.OctreeConfig(a.Octree))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSpaceResponse(space))
}

func (a *API) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces := a.Spaces.List()

	res := make([]spaceResponse, len(spaces))
	for i, s := range spaces {
		res[i] = newSpaceResponse(s)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSpaceResponse(space))
}

func (a *API) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "space")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := a.Spaces.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListEntities(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entities := space.Entities()
	res := make([]entityResponse, len(entities))
	for i, e := range entities {
		res[i] = newEntityResponse(e)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pose := models.NewPoseAt(octree.Vector3f{})
	if err := decodeJSON(r, &pose); err != nil {
		writeError(w, err)
		return
	}

	e, err := space.AddEntity(pose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEntityResponse(e))
}

func (a *API) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	_, e, err := a.entity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntityResponse(e))
}

func (a *API) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := pathID(r, "entity")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := space.RemoveEntity(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpdatePose(w http.ResponseWriter, r *http.Request) {
	space, e, err := a.entity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pose := e.Pose()
	if err := decodeJSON(r, &pose); err != nil {
		writeError(w, err)
		return
	}

	if err := space.UpdateEntityPose(e.ID, pose); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntityResponse(e))
}

func (a *API) handleLocateEntity(w http.ResponseWriter, r *http.Request) {
	space, e, err := a.entity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := space.Locate(e.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleRegionsAt(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := queryPoint(r)
	if err != nil {
		writeError(w, err)
		return
	}

	placements := space.RegionsAt(p)
	if !acceptsProtobuf(r) {
		writeJSON(w, http.StatusOK, placements)
		return
	}

	var requestID uint32
	if v := r.URL.Query().Get("request_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			writeError(w, errors.New("invalid request id").
				WithType(ErrTypeBadRequest).
				WithTag("request_id", v).
				Wrap(err))
			return
		}
		requestID = uint32(id)
	}

	quads := make([]*dagazpb.Quad, len(placements))
	for i, p := range placements {
		quads[i] = p.Region.ToProtobuf()
	}

	b, err := proto.Marshal(&dagazpb.DagazGetRegionResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: requestID,
		Quads:     quads,
	})
	if err != nil {
		writeError(w, errors.New("encoding regions failed").
			WithTag("space_id", space.ID).
			Wrap(err))
		return
	}

	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (a *API) handleTree(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, _ := space.Snapshot()
	b, err := json.Marshal(snapshot)
	if err != nil {
		writeError(w, errors.New("encoding tree failed").
			WithTag("space_id", space.ID).
			Wrap(err))
		return
	}

	// The ETag covers entry positions, which the shape fingerprint does not.
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(b))

	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space.Update())
}

func (a *API) handleViewer(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		space, err := a.space(r)
		if err != nil {
			writeError(w, err)
			return
		}

		hub, ok := space.Visualizer().(*viewer.Hub)
		if !ok {
			writeError(w, errors.New("viewer is disabled").
				WithType(ErrTypeViewerDisabled).
				WithTag("space_id", space.ID))
			return
		}

		viewer.NewServer(ctx, space, hub).ServeHTTP(w, r)
	}
}

func (a *API) space(r *http.Request) (*models.Space, error) {
	id, err := pathID(r, "space")
	if err != nil {
		return nil, err
	}

	space, ok := a.Spaces.Get(id)
	if !ok {
		return nil, errors.New("space not found").
			WithType(models.ErrTypeSpaceNotFound).
			WithTag("space_id", id)
	}
	return space, nil
}

func (a *API) entity(r *http.Request) (*models.Space, *models.Entity, error) {
	space, err := a.space(r)
	if err != nil {
		return nil, nil, err
	}

	id, err := pathID(r, "entity")
	if err != nil {
		return nil, nil, err
	}

	e, ok := space.Entity(id)
	if !ok {
		return nil, nil, errors.New("entity not found").
			WithType(models.ErrTypeEntityNotFound).
			WithTag("space_id", space.ID).
			WithTag("entity_id", id)
	}
	return space, e, nil
}

func pathID(r *http.Request, name string) (uint32, error) {
	v := mux.Vars(r)[name]

	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.New("invalid id").
			WithType(ErrTypeBadRequest).
			WithTag(name, v).
			Wrap(err)
	}
	return uint32(id), nil
}

func queryPoint(r *http.Request) (octree.Vector3f, error) {
	var coords [3]float32

	q := r.URL.Query()
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.ParseFloat(q.Get(name), 32)
		if err != nil {
			return octree.Vector3f{}, errors.New("invalid point").
				WithType(ErrTypeBadRequest).
				WithTag(name, q.Get(name)).
				Wrap(err)
		}
		coords[i] = float32(v)
	}
	return octree.NewVector3f(coords[0], coords[1], coords[2]), nil
}

func acceptsProtobuf(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), contentTypeProtobuf)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("decoding request body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.Type(err) {
	case models.ErrTypeSpaceNotFound,
		models.ErrTypeEntityNotFound,
		ErrTypeViewerDisabled:
		status = http.StatusNotFound

	case ErrTypeBadRequest,
		octree.ErrTypeInvalidRegion,
		octree.ErrTypeInvalidConfig,
		scene.ErrTypeSceneInvalid:
		status = http.StatusBadRequest

	case octree.ErrTypeUnknownObject:
		status = http.StatusConflict

	case models.ErrTypeOutOfRegion:
		status = http.StatusUnprocessableEntity
	}

	instrumentAPIError(errors.Type(err), status)
	if status == http.StatusInternalServerError {
		logs.WithTag("status", status).Error(err)
	} else {
		logs.WithTag("status", status).Debug(err)
	}

	writeJSON(w, status, errorResponse{
		Type:    errors.Type(err),
		Message: err.Error(),
	})
}
