package server

import (
	"context"

	"github.com/cwaldron/scenecast/internal/metadata"
	"github.com/cwaldron/scenecast/internal/pathmap"
)

// sceneResolver resolves scenes through the metadata client and fills in
// duration and source dimensions via ffprobe when the upstream record
// omits them. Probing is best effort; an unprobable file surfaces later
// as a transcoder failure with a clearer message.
type sceneResolver struct {
	client *metadata.Client
	prober *metadata.Prober
	paths  *pathmap.Mapper
}

func newSceneResolver(client *metadata.Client, prober *metadata.Prober, paths *pathmap.Mapper) *sceneResolver {
	return &sceneResolver{client: client, prober: prober, paths: paths}
}

func (r *sceneResolver) ResolveScene(ctx context.Context, sceneID string) (*metadata.Scene, error) {
	scene, err := r.client.ResolveScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.DurationSec > 0 && scene.SourceHeight > 0 {
		return scene, nil
	}

	localPath, err := r.paths.Translate(scene.Path)
	if err != nil {
		return scene, nil
	}

	enriched := *scene
	if err := r.prober.Enrich(ctx, &enriched, localPath); err != nil {
		return scene, nil
	}
	return &enriched, nil
}
