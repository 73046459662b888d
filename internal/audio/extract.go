// Package audio pulls the first audio stream out of a video container and
// re-encodes it as a standalone MP3 using ffprobe and ffmpeg.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"audiotox-go/internal/command"
	"audiotox-go/internal/types"
)

// streamList is the part of `ffprobe -show_streams -of json` we read.
type streamList struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Extractor demuxes and re-encodes audio from video files.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	runner      command.Runner
	stat        func(string) (os.FileInfo, error)
	remove      func(string) error
}

// NewExtractor builds an extractor around the given tool paths.
func NewExtractor(ffmpegPath, ffprobePath string, runner command.Runner) *Extractor {
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
		stat:        os.Stat,
		remove:      os.Remove,
	}
}

// ExtractAudio writes the first audio stream of videoPath to audioPath as
// MP3. It fails with types.ErrNoAudioStream when the container has no audio
// and types.ErrAudioExtractionFailed for anything else. audioPath never
// survives a failure.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	stream, err := e.firstAudioStream(ctx, videoPath)
	if err != nil {
		return err
	}

	// ffmpeg drains the encoder at end of input and writes the trailer
	// only after the last packet is muxed, so a zero exit status means the
	// tail of the audio made it out.
	args := buildFFmpegArgs(videoPath, audioPath, stream)
	res, runErr := e.runner.Run(ctx, e.ffmpegPath, args...)
	log := command.NewLog(e.ffmpegPath, args, res)
	if runErr != nil {
		e.discard(audioPath)
		return &command.Error{Log: log, Err: fmt.Errorf("%w: encode: %v", types.ErrAudioExtractionFailed, runErr)}
	}

	info, err := e.stat(audioPath)
	if err != nil {
		e.discard(audioPath)
		return &command.Error{Log: log, Err: fmt.Errorf("%w: output missing: %v", types.ErrAudioExtractionFailed, err)}
	}
	if info.Size() == 0 {
		e.discard(audioPath)
		return &command.Error{Log: log, Err: fmt.Errorf("%w: output is empty", types.ErrAudioExtractionFailed)}
	}
	return nil
}

// firstAudioStream returns the container index of the first audio stream.
func (e *Extractor) firstAudioStream(ctx context.Context, videoPath string) (int, error) {
	args := buildStreamsArgs(videoPath)
	res, err := e.runner.Run(ctx, e.ffprobePath, args...)
	log := command.NewLog(e.ffprobePath, args, res)
	if err != nil {
		return 0, &command.Error{Log: log, Err: fmt.Errorf("%w: list streams: %v", types.ErrAudioExtractionFailed, err)}
	}

	var out streamList
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return 0, &command.Error{Log: log, Err: fmt.Errorf("%w: decode stream list: %v", types.ErrAudioExtractionFailed, err)}
	}
	for _, s := range out.Streams {
		if s.CodecType == "audio" {
			return s.Index, nil
		}
	}
	return 0, fmt.Errorf("%s has %d streams: %w", videoPath, len(out.Streams), types.ErrNoAudioStream)
}

// discard drops partial output. A failed remove is left to the run's
// namespace cleanup.
func (e *Extractor) discard(path string) {
	_ = e.remove(path)
}

// buildStreamsArgs lists the container's streams as JSON.
func buildStreamsArgs(videoPath string) []string {
	return []string{
		"-v", "error",
		"-show_streams",
		"-of", "json",
		videoPath,
	}
}

// buildFFmpegArgs maps one audio stream, drops video and encodes MP3.
func buildFFmpegArgs(videoPath, audioPath string, stream int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", videoPath,
		"-map", "0:" + strconv.Itoa(stream),
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "4",
		"-f", "mp3",
		audioPath,
	}
}
