package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/lokal-ai/vidtrack"
	"github.com/lokal-ai/vidtrack/render"
	"github.com/lokal-ai/vidtrack/session"
	"github.com/lokal-ai/vidtrack/store"
	"github.com/lokal-ai/vidtrack/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocv.io/x/gocv"
)

// clipFrame is a decoded frame and the cleaned path of the video it came
// from
type clipFrame struct {
	Video string
	Mat   *gocv.Mat
}

// videoSource reads frames from a video file with gocv.  The same Mat is
// reused for every frame so it is only valid until the next call to Next
type videoSource struct {
	name  string
	path  string
	video *gocv.VideoCapture
	img   gocv.Mat
	fps   float64
	index int
}

// openVideo opens the video file for reading
func openVideo(path string) (*videoSource, error) {

	video, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("error opening video %s: %w", path, err)
	}

	fps := video.Get(gocv.VideoCaptureFPS)

	if fps <= 0 {
		// assume the 2 FPS sampling of extracted frames
		fps = 2
	}

	return &videoSource{
		name:  videoName(path),
		path:  filepath.Clean(path),
		video: video,
		img:   gocv.NewMat(),
		fps:   fps,
	}, nil
}

// Next reads the next non empty frame
func (v *videoSource) Next(ctx context.Context) (session.Frame[clipFrame], error) {

	for {
		if err := ctx.Err(); err != nil {
			return session.Frame[clipFrame]{}, err
		}

		// read the next frame from the video
		if ok := v.video.Read(&v.img); !ok {
			return session.Frame[clipFrame]{}, io.EOF
		}

		idx := v.index
		v.index++

		if v.img.Empty() {
			continue
		}

		return session.Frame[clipFrame]{
			Index:     idx,
			Timestamp: time.Duration(float64(idx) / v.fps * float64(time.Second)),
			Image:     clipFrame{Video: v.path, Mat: &v.img},
		}, nil
	}
}

// Close releases the capture and frame buffer
func (v *videoSource) Close() {
	v.img.Close()
	v.video.Close()
}

// frameDetections is one line of a detection replay file
type frameDetections struct {
	Frame      int                 `json:"frame"`
	Detections []tracker.Detection `json:"detections"`
}

// replayDetector returns detections recorded earlier by a detection model,
// keyed by cleaned video path then frame index.  It is read only once loaded so is
// safe for concurrent use
type replayDetector struct {
	frames map[string]map[int][]tracker.Detection
}

// load reads a JSON lines replay file for the video at videoPath
func (r *replayDetector) load(videoPath, path string) error {

	f, err := os.Open(path)

	if err != nil {
		return fmt.Errorf("error opening detections file: %w", err)
	}

	defer f.Close()

	frames := make(map[int][]tracker.Detection)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0

	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var fd frameDetections

		if err := json.Unmarshal([]byte(text), &fd); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}

		frames[fd.Frame] = append(frames[fd.Frame], fd.Detections...)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading detections file: %w", err)
	}

	if r.frames == nil {
		r.frames = make(map[string]map[int][]tracker.Detection)
	}

	r.frames[filepath.Clean(videoPath)] = frames

	return nil
}

// Detect returns a copy of the recorded detections for the frame
func (r *replayDetector) Detect(ctx context.Context, frame session.Frame[clipFrame]) ([]tracker.Detection, error) {

	frames, ok := r.frames[frame.Image.Video]

	if !ok {
		return nil, fmt.Errorf("no detections recorded for video %s", frame.Image.Video)
	}

	return append([]tracker.Detection(nil), frames[frame.Index]...), nil
}

// limitDetector drops detections whose class is not in the allowed set
func limitDetector(det session.Detector[clipFrame], allowed []string) session.Detector[clipFrame] {

	if len(allowed) == 0 {
		return det
	}

	return session.DetectorFunc[clipFrame](func(ctx context.Context, frame session.Frame[clipFrame]) ([]tracker.Detection, error) {

		dets, err := det.Detect(ctx, frame)

		if err != nil {
			return nil, err
		}

		kept := make([]tracker.Detection, 0, len(dets))

		for _, d := range dets {
			if containsStr(allowed, d.ClassName) {
				kept = append(kept, d)
			}
		}

		return kept, nil
	})
}

// containsStr checks if a given string exists in the slice
func containsStr(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}

	return false
}

// annotator writes each frame of a video with the emitted tracks and their
// trails drawn on it
type annotator struct {
	writer *gocv.VideoWriter
	trail  *tracker.Trail
	font   render.Font
	style  render.BoxStyle
	// last holds the tracks of the last sampled frame, drawn on the frames
	// in between
	last []tracker.Snapshot
	img  gocv.Mat
}

// newAnnotator creates the output video file
func newAnnotator(path string, src *videoSource) (*annotator, error) {

	width := int(src.video.Get(gocv.VideoCaptureFrameWidth))
	height := int(src.video.Get(gocv.VideoCaptureFrameHeight))

	writer, err := gocv.VideoWriterFile(path, "MJPG", src.fps, width, height, true)

	if err != nil {
		return nil, fmt.Errorf("error creating video writer: %w", err)
	}

	return &annotator{
		writer: writer,
		trail:  tracker.NewTrail(30),
		font:   render.DefaultFont(),
		style:  render.DefaultBoxStyle(),
		img:    gocv.NewMat(),
	}, nil
}

// hook is the session.FrameHook drawing and writing each frame
func (a *annotator) hook(frame session.Frame[clipFrame], res *session.FrameResult) error {

	if res != nil {
		a.last = res.Tracks
		a.trail.Add(res.Tracks)
	}

	frame.Image.Mat.CopyTo(&a.img)

	render.Trail(&a.img, a.last, a.trail, render.DefaultTrailStyle())
	render.TrackerBoxes(&a.img, a.last, a.font, a.style)

	return a.writer.Write(a.img)
}

// Close flushes the output video
func (a *annotator) Close() {
	a.img.Close()
	a.writer.Close()
}

// videoName returns the file name of the video without its extension
func videoName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// checkNames returns an error if two videos share a name, eg: the same file
// name in different directories
func checkNames(videos []string) error {

	seen := make(map[string]string, len(videos))

	for _, v := range videos {
		name := videoName(v)

		if prev, ok := seen[name]; ok {
			return fmt.Errorf("videos %s and %s share the name %q", prev, v, name)
		}

		seen[name] = v
	}

	return nil
}

// splitList splits a comma delimited flag value
func splitList(s string) []string {

	var out []string

	for _, word := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(word); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	vidFiles := flag.String("v", "../data/aisle.mp4", "Comma delimited list of video files to track objects in")
	detFiles := flag.String("d", "", "Comma delimited list of JSON lines detection files, one per video, defaults to the video path with a .jsonl extension")
	labelFile := flag.String("l", "", "Text file containing model labels, used to name detections that only have a class ID")
	configFile := flag.String("c", "", "JSON session config file, defaults are used when not set")
	outFile := flag.String("o", "", "File to write the JSON tracking results to, defaults to stdout")
	dbFile := flag.String("db", "", "SQLite database to store tracking results in")
	annotateDir := flag.String("w", "", "Directory to write annotated videos to")
	poolSize := flag.Int("s", 2, "Number of videos to track concurrently")
	limitLabels := flag.String("x", "", "Comma delimited list of labels to restrict object tracking to")
	httpAddr := flag.String("a", "", "HTTP Address to serve prometheus metrics on, format address:port")
	verbose := flag.Bool("verbose", false, "Log rejected detections and solver fallbacks")

	flag.Parse()

	cfg := session.DefaultConfig()

	if *configFile != "" {
		var err error
		cfg, err = session.LoadConfig(*configFile)

		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}

	videos := splitList(*vidFiles)
	replays := splitList(*detFiles)

	if len(replays) == 0 {
		for _, v := range videos {
			replays = append(replays, strings.TrimSuffix(v, filepath.Ext(v))+".jsonl")
		}
	}

	// names label results and annotated output files so must be unique
	if err := checkNames(videos); err != nil {
		log.Fatalf("Error in video list: %v", err)
	}

	if len(replays) != len(videos) {
		log.Fatalf("Got %d detection files for %d videos", len(replays), len(videos))
	}

	// load recorded detections
	replay := &replayDetector{}

	for i, v := range videos {
		if err := replay.load(v, replays[i]); err != nil {
			log.Fatalf("Error loading detections: %v", err)
		}
	}

	var det session.Detector[clipFrame] = replay

	if *labelFile != "" {
		labels, err := vidtrack.LoadLabels(*labelFile)

		if err != nil {
			log.Fatalf("Error loading model labels: %v", err)
		}

		det = vidtrack.LabelDetector[clipFrame](det, labels)
	}

	if limit := splitList(*limitLabels); len(limit) > 0 {
		log.Printf("Limiting object tracking class to: %s\n", strings.Join(limit, ", "))
		det = limitDetector(det, limit)
	}

	// metrics
	reg := prometheus.NewRegistry()
	metrics := session.NewMetrics(reg)

	if *httpAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		go func() {
			log.Printf("Serving metrics at http://%s/metrics", *httpAddr)
			log.Println(http.ListenAndServe(*httpAddr, nil))
		}()
	}

	var logger *log.Logger

	if *verbose {
		logger = log.New(os.Stderr, "[session] ", 0)
	}

	pool, err := vidtrack.NewPool(*poolSize, cfg, logger, metrics)

	if err != nil {
		log.Fatalf("Error creating session pool: %v", err)
	}

	defer pool.Close()

	// open videos
	jobs := make([]vidtrack.Video[clipFrame], 0, len(videos))

	for _, v := range videos {
		src, err := openVideo(v)

		if err != nil {
			log.Fatalf("Error opening video: %v", err)
		}

		defer src.Close()

		job := vidtrack.Video[clipFrame]{
			Name:   src.name,
			Source: src,
		}

		if *annotateDir != "" {
			ann, err := newAnnotator(filepath.Join(*annotateDir, src.name+"-tracked.avi"), src)

			if err != nil {
				log.Fatalf("Error creating annotated video: %v", err)
			}

			defer ann.Close()
			job.Hook = ann.hook
		}

		jobs = append(jobs, job)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()

	results, err := vidtrack.ProcessVideos(ctx, pool, jobs, det)

	if err != nil {
		log.Fatalf("Error tracking videos: %v", err)
	}

	for _, res := range results {
		log.Printf("%s: %d unique tracks across %d frames, average duration %.1f frames",
			res.Video, res.TotalTracks, res.TotalFrames, res.Stats.AvgTrackDuration)
	}

	log.Printf("Tracked %d videos in %s", len(results), time.Since(start))

	if *dbFile != "" {
		if err := saveResults(ctx, *dbFile, results); err != nil {
			log.Fatalf("Error storing results: %v", err)
		}
	}

	if err := writeResults(*outFile, results); err != nil {
		log.Fatalf("Error writing results: %v", err)
	}
}

// saveResults stores every result in the SQLite database
func saveResults(ctx context.Context, path string, results []*session.Result) error {

	st, err := store.Open(path)

	if err != nil {
		return err
	}

	defer st.Close()

	for _, res := range results {
		if err := st.SaveResult(ctx, res); err != nil {
			return fmt.Errorf("%s: %w", res.Video, err)
		}

		log.Printf("Stored run %s for %s", res.RunID, res.Video)
	}

	return nil
}

// writeResults writes the results as indented JSON to path or stdout
func writeResults(path string, results []*session.Result) (err error) {

	var w io.Writer = os.Stdout

	if path != "" {
		f, err := os.Create(path)

		if err != nil {
			return err
		}

		defer func() {
			err = errors.Join(err, f.Close())
		}()

		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}
