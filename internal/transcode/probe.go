// probe.go — определение кодеков входного видео через ffprobe.
// Для каждого файла выполняется два вызова: первый видеопоток
// (codec_name, pix_fmt) и первый аудиопоток (codec_name).
package transcode

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// ProbeInfo — кодеки входного файла. Пустые значения означают
// отсутствие потока или нераспознанный вывод ffprobe.
type ProbeInfo struct {
	VideoCodec string
	PixFmt     string
	AudioCodec string
}

// probeStreams — формат вывода ffprobe -of json.
type probeStreams struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		PixFmt    string `json:"pix_fmt"`
	} `json:"streams"`
}

// parseStreamInfo извлекает codec_name и pix_fmt первого потока
// из JSON-вывода ffprobe. Нераспознанный вывод — пустые значения, не ошибка.
func parseStreamInfo(out []byte) (codecName, pixFmt string) {
	var parsed probeStreams
	if err := json.Unmarshal(out, &parsed); err != nil {
		return "", ""
	}
	if len(parsed.Streams) == 0 {
		return "", ""
	}
	return parsed.Streams[0].CodecName, parsed.Streams[0].PixFmt
}

// Probe определяет кодеки первого видео- и аудиопотока файла.
func Probe(ctx context.Context, ffprobePath, file string) (*ProbeInfo, error) {
	vOut, err := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,pix_fmt",
		"-of", "json",
		file,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe видеопотока: %w", err)
	}

	aOut, err := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "json",
		file,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe аудиопотока: %w", err)
	}

	info := &ProbeInfo{}
	info.VideoCodec, info.PixFmt = parseStreamInfo(vOut)
	info.AudioCodec, _ = parseStreamInfo(aOut)
	return info, nil
}

// VideoCompliant проверяет, что видеопоток не требует перекодирования:
// H.264 с chroma subsampling 4:2:0 (отсутствующий pix_fmt считается совместимым).
func (p *ProbeInfo) VideoCompliant() bool {
	return p.VideoCodec == "h264" && (p.PixFmt == "yuv420p" || p.PixFmt == "")
}

// AudioCompliant проверяет, что аудиопоток не требует перекодирования (AAC).
func (p *ProbeInfo) AudioCompliant() bool {
	return p.AudioCodec == "aac"
}
