package uploads

import "sync"

// ProgressCache tracks the received offset of in-flight uploads so progress
// endpoints can answer without hitting the database.
type ProgressCache struct {
	uploadProgress map[string]int64
	mu             sync.Mutex
}

func NewProgressCache() *ProgressCache {
	return &ProgressCache{
		uploadProgress: make(map[string]int64),
	}
}

func (c *ProgressCache) GetUploadProgress(sessionID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	progress, ok := c.uploadProgress[sessionID]
	if !ok {
		return 0
	}

	return progress
}

func (c *ProgressCache) SetUploadProgress(sessionID string, progress int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.uploadProgress[sessionID] = progress
}

func (c *ProgressCache) DeleteUploadProgress(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.uploadProgress, sessionID)
}
