// plan.go — построение аргументов ffmpeg для универсального MP4.
//
// Правило соответствия: видео — H.264 yuv420p, аудио — AAC.
// Если оба потока совместимы — только remux (stream copy, без перекодирования).
// Иначе перекодируется лишь несовместимый поток, совместимый копируется.
// Контейнер всегда финализируется с faststart: moov-атом в начале файла,
// чтобы воспроизведение началось до полной загрузки.
package transcode

// BuildArgs строит аргументы ffmpeg для преобразования input → output.
func BuildArgs(input, output string, info *ProbeInfo) []string {
	args := []string{"-y", "-i", input}

	encodeVideo := !info.VideoCompliant()
	encodeAudio := !info.AudioCompliant()

	if !encodeVideo && !encodeAudio {
		// Оба потока совместимы — дешёвый lossless remux
		args = append(args, "-c", "copy")
	} else {
		if encodeVideo {
			args = append(args,
				"-vf", "format=yuv420p",
				"-c:v", "libx264",
				"-profile:v", "main",
				"-level:v", "4.0",
				"-preset", "veryfast",
				"-crf", "20",
			)
		} else {
			args = append(args, "-c:v", "copy")
		}
		if encodeAudio {
			args = append(args,
				"-c:a", "aac",
				"-b:a", "128k",
				"-ac", "2",
				"-ar", "48000",
			)
		} else {
			args = append(args, "-c:a", "copy")
		}
	}

	args = append(args, "-movflags", "+faststart", output)
	return args
}
