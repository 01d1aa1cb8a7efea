package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	geoconv "github.com/tingold/orb-geoconv"
	"github.com/tingold/orb-geoconv/internal/config"
	"github.com/tingold/orb-geoconv/internal/geodata"
)

// server holds the defaults every request starts from.
type server struct {
	defaults  geoconv.Options
	maxUpload int64
}

func newServer(cfg *config.Config) (*server, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	mb := cfg.Server.MaxUploadMB
	if mb <= 0 {
		mb = config.Default().Server.MaxUploadMB
	}
	return &server{defaults: opts, maxUpload: int64(mb) << 20}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /convert", s.handleConvert)
	mux.HandleFunc("POST /merge", s.handleMerge)
	mux.HandleFunc("GET /formats", s.handleFormats)
	return RequestLogger(mux)
}

// handleConvert converts the single uploaded "file" part.
func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	ins, out, opts, err := s.parse(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(ins) != 1 {
		writeError(w, r, badRequest("convert takes exactly one file, got %d", len(ins)))
		return
	}
	res, err := geoconv.Convert(r.Context(), ins[0], out, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res, opts)
}

// handleMerge merges every uploaded "file" part in upload order.
func (s *server) handleMerge(w http.ResponseWriter, r *http.Request) {
	ins, out, opts, err := s.parse(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := geoconv.MergeAndConvert(r.Context(), ins, out, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res, opts)
}

func (s *server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	type format struct {
		Name      string `json:"name"`
		Extension string `json:"extension"`
	}
	var formats []format
	for _, f := range geoconv.Formats() {
		formats = append(formats, format{Name: f.String(), Extension: f.Extension()})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(formats)
}

// requestError is a client error found before the pipeline runs.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// parse reads the multipart form: one or more "file" parts plus the
// optional fields to, target_crs, input_crs, geometry_column,
// geometry_encoding, layer, kmz, minify, index, bbox and drop_duplicates.
func (s *server) parse(w http.ResponseWriter, r *http.Request) ([]geoconv.Input, geoconv.Format, geoconv.Options, error) {
	opts := s.defaults
	opts.RequestID = w.Header().Get(requestIDHeader)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, 0, opts, err
		}
		return nil, 0, opts, badRequest("invalid multipart form: %v", err)
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, 0, opts, badRequest("no file uploaded")
	}
	ins := make([]geoconv.Input, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return nil, 0, opts, badRequest("reading %s: %v", fh.Filename, err)
		}
		ins = append(ins, geoconv.Input{Name: fh.Filename, Data: data})
	}

	to := r.FormValue("to")
	out, err := geoconv.ParseFormat(to)
	if err != nil {
		return nil, 0, opts, err
	}
	if strings.EqualFold(strings.TrimSpace(to), "kmz") {
		opts.Write.KMZ = true
	}

	if v := r.FormValue("target_crs"); v != "" {
		if opts.TargetCRS, err = geoconv.ParseCRS(v); err != nil {
			return nil, 0, opts, err
		}
	}
	if v := r.FormValue("input_crs"); v != "" {
		if opts.Read.CRS, err = geoconv.ParseCRS(v); err != nil {
			return nil, 0, opts, err
		}
	}
	if v := r.FormValue("geometry_column"); v != "" {
		opts.Read.GeometryColumn = v
		opts.Write.GeometryColumn = v
	}
	if v := r.FormValue("geometry_encoding"); v != "" {
		if opts.Write.GeometryEncoding, err = geodata.ParseGeometryEncoding(v); err != nil {
			return nil, 0, opts, badRequest("%v", err)
		}
	}
	if v := r.FormValue("layer"); v != "" {
		opts.Write.LayerName = v
	}
	for name, dst := range map[string]*bool{
		"kmz":             &opts.Write.KMZ,
		"minify":          &opts.Write.Minify,
		"index":           &opts.Write.IncludeIndex,
		"drop_duplicates": &opts.DropDuplicates,
	} {
		if v := r.FormValue(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, 0, opts, badRequest("%s: %v", name, err)
			}
			*dst = b
		}
	}
	if v := r.FormValue("bbox"); v != "" {
		b, err := parseBBox(v)
		if err != nil {
			return nil, 0, opts, err
		}
		opts.Bound = &b
	}
	return ins, out, opts, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, badRequest("bbox %q: expected minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, badRequest("bbox %q: %v", s, err)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

var contentTypes = map[geoconv.Format]string{
	geoconv.Shapefile:  "application/zip",
	geoconv.KML:        "application/vnd.google-earth.kml+xml",
	geoconv.GeoJSON:    "application/geo+json",
	geoconv.CSV:        "text/csv",
	geoconv.FlatGeobuf: "application/octet-stream",
}

func writeResult(w http.ResponseWriter, res *geoconv.Result, opts geoconv.Options) {
	ct := contentTypes[res.Format]
	if res.Format == geoconv.KML && opts.Write.KMZ {
		ct = "application/vnd.google-earth.kmz"
	}
	name := res.Collection.Name
	if opts.Write.LayerName != "" {
		name = opts.Write.LayerName
	}
	if name == "" {
		name = geodata.DefaultLayerName
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+geoconv.Extension(res.Format, opts.Write)))
	for _, warning := range res.Warnings {
		w.Header().Add("X-Geoconv-Warning", warning.String())
	}
	_, _ = w.Write(res.Data)
}

type errorBody struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	Input     *int   `json:"input,omitempty"`
	Name      string `json:"name,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError reports err as JSON. Client errors map to 4xx, anything the
// pipeline did not classify to 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), RequestID: w.Header().Get(requestIDHeader)}
	var e *geoconv.Error
	if errors.As(err, &e) {
		body.Stage = e.Stage.String()
		body.Name = e.Name
		if e.Input >= 0 {
			input := e.Input
			body.Input = &input
		}
	}

	status := statusOf(err)
	ev := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Msg("Request rejected")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusOf(err error) int {
	var re *requestError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &re):
		return http.StatusBadRequest
	case errors.Is(err, geoconv.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, geoconv.ErrEmptyInputSet):
		return http.StatusBadRequest
	case errors.Is(err, geoconv.ErrNoShapefileFound),
		errors.Is(err, geoconv.ErrMissingGeometryColumn),
		errors.Is(err, geoconv.ErrMalformedInput),
		errors.Is(err, geoconv.ErrCRSMismatch),
		errors.Is(err, geoconv.ErrIncompatibleGeometryTypes):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
