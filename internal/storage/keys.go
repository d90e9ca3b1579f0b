package storage

import "fmt"

// Artifact keys are namespaced by user and job so concurrent jobs can never
// collide, and append-only per shot/transition path.

func SourceImageKey(userID, jobID string) string {
	return fmt.Sprintf("users/%s/jobs/%s/source/product.png", userID, jobID)
}

func ShotKey(userID, jobID string, cut int) string {
	return fmt.Sprintf("users/%s/jobs/%s/shots/shot-%02d.png", userID, jobID, cut)
}

func TransitionClipKey(userID, jobID, transitionKey string) string {
	return fmt.Sprintf("users/%s/jobs/%s/transitions/clip-%s.mp4", userID, jobID, transitionKey)
}

func FinalVideoKey(userID, jobID string) string {
	return fmt.Sprintf("users/%s/jobs/%s/final/video.mp4", userID, jobID)
}

func ThumbnailKey(userID, jobID string) string {
	return fmt.Sprintf("users/%s/jobs/%s/final/thumbnail.jpg", userID, jobID)
}
