package transfer

import (
	"sort"
	"sync"
	"time"

	"diarysync/internal/storage"
)

// Task is the durable intent of an upload: enough to restart it after the
// process dies.
type Task struct {
	VideoID     string    `json:"videoId"`
	UploadURL   string    `json:"uploadUrl"`
	SourcePath  string    `json:"sourcePath"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	Attempts    int       `json:"attempts,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Journal persists pending upload tasks in one JSON file. A nil *Journal
// records nothing.
type Journal struct {
	mu    sync.Mutex
	doc   *storage.Document[map[string]Task]
	tasks map[string]Task
	now   func() time.Time
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string) (*Journal, error) {
	doc, err := storage.OpenDocument[map[string]Task](path, "upload journal", 0600)
	if err != nil {
		return nil, err
	}
	tasks, _, err := doc.Load()
	if err != nil {
		doc.Close()
		return nil, err
	}
	if tasks == nil {
		tasks = make(map[string]Task)
	}
	return &Journal{doc: doc, tasks: tasks, now: time.Now}, nil
}

// Record stores t, replacing any task with the same video id.
func (j *Journal) Record(t Task) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	t.UpdatedAt = j.now().UTC()
	return j.mutate(func(m map[string]Task) { m[t.VideoID] = t })
}

// MarkFailed keeps the task for a later resume and notes why it stopped.
func (j *Journal) MarkFailed(videoID string, attempts int, cause error) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	t, ok := j.tasks[videoID]
	if !ok {
		return nil
	}
	t.Attempts += attempts
	if cause != nil {
		t.LastError = cause.Error()
	}
	t.UpdatedAt = j.now().UTC()
	return j.mutate(func(m map[string]Task) { m[videoID] = t })
}

// Remove forgets the task for videoID.
func (j *Journal) Remove(videoID string) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.tasks[videoID]; !ok {
		return nil
	}
	return j.mutate(func(m map[string]Task) { delete(m, videoID) })
}

// Tasks returns every pending task ordered by video id.
func (j *Journal) Tasks() []Task {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Task, 0, len(j.tasks))
	for _, t := range j.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].VideoID < out[b].VideoID })
	return out
}

// Close releases the journal file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doc.Close()
}

// mutate applies fn to a copy, persists it and only then swaps it in.
// Must be called with mu held.
func (j *Journal) mutate(fn func(map[string]Task)) error {
	next := make(map[string]Task, len(j.tasks)+1)
	for k, v := range j.tasks {
		next[k] = v
	}
	fn(next)
	if err := j.doc.Save(next); err != nil {
		return err
	}
	j.tasks = next
	return nil
}
