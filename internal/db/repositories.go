package db

// Repositories provides access to all database repositories
type Repositories struct {
	Users        *UserRepository
	Ratings      *RatingRepository
	Playlists    *PlaylistRepository
	WatchHistory *WatchHistoryRepository
	PathMappings *PathMappingRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Users:        NewUserRepository(db),
		Ratings:      NewRatingRepository(db),
		Playlists:    NewPlaylistRepository(db),
		WatchHistory: NewWatchHistoryRepository(db),
		PathMappings: NewPathMappingRepository(db),
	}
}
