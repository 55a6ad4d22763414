// Package model declaratively wires the fifteen named modules of
// ModelBasic into the full receive pipeline: read -> demuxInBuffer ->
// demux -> { video, audio } decoder buffers -> decoders -> picture buffers
// -> sync -> output, with the Stc/StcOffset clock fan-in wired to every
// consumer that samples it.
package model

import (
	"github.com/charmbracelet/log"
	"github.com/dvbsim/receiver/internal/avsync"
	"github.com/dvbsim/receiver/internal/channel"
	"github.com/dvbsim/receiver/internal/config"
	"github.com/dvbsim/receiver/internal/decoder"
	"github.com/dvbsim/receiver/internal/demux"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/logging"
	"github.com/dvbsim/receiver/internal/source"
	"github.com/dvbsim/receiver/internal/stc"
	"github.com/dvbsim/receiver/internal/trace"
)

// ModelBasic is the only recognised top-level model (config.json's
// mainModel field must equal "ModelBasic").
type ModelBasic struct {
	engine   *kernel.Engine
	recorder *trace.Recorder
}

// NewModelBasic builds the full module graph from cfg, recording CSV
// traces for each buffer, stc, stcOffset, demux, decoder and output module
// whose config enables trace:true. The read module's trace field is not
// consulted, and the two Sync instances have no traced variables.
func NewModelBasic(cfg *config.Config, logger *log.Logger, rec *trace.Recorder) *ModelBasic {
	e := kernel.New(logger)

	inBufCfg := cfg.Module("demuxInBuffer")
	inBuf := channel.NewFillBuffer[[]byte](inBufCfg.Int("size"))
	if inBufCfg.Bool("trace") {
		inBuf.SetFillTrace(rec.Int64("demuxInBuffer", "fill", 0))
	}

	wireReader(e, cfg, inBuf, logger)

	stcCfg := cfg.Module("stc")
	stcMod := stc.New(stcCfg.Int64("pcrJumpBorder"), logging.Module(logger, "stc"))
	if stcCfg.Bool("trace") {
		stcMod.SetTraces(
			rec.Float64("stc", "middleError", 0),
			rec.Int64("stc", "incomingPcr", 0),
			rec.Float64("stc", "plainError", 0),
			rec.Bool("stc", "running", false),
		)
	}
	stcMod.RunTasks(e, "stc")

	stcOffsetCfg := cfg.Module("stcOffset")
	stcOffsetMod := stc.NewStcOffset(stcOffsetCfg.Int64("offset"))
	stcOffsetMod.RequestToStc = stcMod.Request
	stcOffsetMod.ReplyFromStc = stcMod.Reply
	if stcOffsetCfg.Bool("trace") {
		stcOffsetMod.SetTraces(
			rec.Int64("stcOffset", "in", 0),
			rec.Int64("stcOffset", "out", 0),
		)
	}
	stcOffsetMod.RunTask(e, "stcOffset")

	videoBufCfg := cfg.Module("videoDecoderBuffer")
	videoBuf := channel.NewDecoderBuffer(videoBufCfg.Int("size"))
	if videoBufCfg.Bool("trace") {
		videoBuf.SetFillTrace(rec.Int64("videoDecoderBuffer", "fill", 0))
	}

	audioBufCfg := cfg.Module("audioDecoderBuffer")
	audioBuf := channel.NewDecoderBuffer(audioBufCfg.Int("size"))
	if audioBufCfg.Bool("trace") {
		audioBuf.SetFillTrace(rec.Int64("audioDecoderBuffer", "fill", 0))
	}

	demuxCfg := cfg.Module("demux")
	demuxMod := demux.New(
		uint16(demuxCfg.Int("videoPid")),
		uint16(demuxCfg.Int("audioPid")),
		uint16(demuxCfg.Int("pcrPid")),
		logging.Module(logger, "demux"),
	)
	demuxMod.In = inBuf
	demuxMod.VideoOut = videoBuf
	demuxMod.AudioOut = audioBuf
	demuxMod.PcrOut = stcMod.PcrIn
	demuxMod.StartStcOut = stcMod.StartStc
	demuxMod.StcRequest = stcMod.Request
	demuxMod.StcReply = stcMod.Reply
	demuxMod.OffsetRequest = stcOffsetMod.RequestFromModule
	demuxMod.OffsetReply = stcOffsetMod.ReplyToModule
	if demuxCfg.Bool("trace") {
		demuxMod.SetTraces(
			rec.Float64("demux", "timeToPresentVideo", 0),
			rec.Float64("demux", "timeToPresentVideoIncludingStcOffset", 0),
			rec.Float64("demux", "timeToPresentAudio", 0),
			rec.Float64("demux", "timeToPresentAudioIncludingStcOffset", 0),
			rec.Int64("demux", "pesVideoPacketSize", 0),
			rec.Int64("demux", "pesAudioPacketSize", 0),
		)
	}
	demuxMod.RunTask(e, "demux")

	pictureBufCfg := cfg.Module("pictureBuffer")
	pictureBuf := channel.NewPictureBuffer(pictureBufCfg.Int("size"), logging.Module(logger, "pictureBuffer"))
	if pictureBufCfg.Bool("trace") {
		pictureBuf.SetFillTrace(rec.Int64("pictureBuffer", "fill", 0))
	}

	audioPictureBufCfg := cfg.Module("audioBuffer")
	audioPictureBuf := channel.NewPictureBuffer(audioPictureBufCfg.Int("size"), logging.Module(logger, "audioBuffer"))
	if audioPictureBufCfg.Bool("trace") {
		audioPictureBuf.SetFillTrace(rec.Int64("audioBuffer", "fill", 0))
	}

	videoDecCfg := cfg.Module("videoDecoder")
	videoDec := decoder.New(videoDecCfg.String("videoTyp"), videoDecCfg.Float64("decodingTime"), logging.Module(logger, "videoDecoder"))
	videoDec.In = videoBuf
	videoDec.Out = pictureBuf
	videoDec.StcRequest = stcMod.Request
	videoDec.StcReply = stcMod.Reply
	videoDec.OffsetRequest = stcOffsetMod.RequestFromModule
	videoDec.OffsetReply = stcOffsetMod.ReplyToModule
	if videoDecCfg.Bool("trace") {
		videoDec.SetFrameCounterTraces(
			rec.Int64("videoDecoder", "framesPerSecond", 0),
			rec.Int64("videoDecoder", "framesPerMinute", 0),
		)
	}
	videoDec.RunTask(e, "videoDecoder")

	audioDecCfg := cfg.Module("audioDecoder")
	audioDec := decoder.NewAudioDecoder(logging.Module(logger, "audioDecoder"))
	audioDec.In = audioBuf
	audioDec.Out = audioPictureBuf
	audioDec.StcRequest = stcMod.Request
	audioDec.StcReply = stcMod.Reply
	audioDec.OffsetRequest = stcOffsetMod.RequestFromModule
	audioDec.OffsetReply = stcOffsetMod.ReplyToModule
	if audioDecCfg.Bool("trace") {
		audioDec.SetFrameCounterTraces(
			rec.Int64("audioDecoder", "framesPerSecond", 0),
			rec.Int64("audioDecoder", "framesPerMinute", 0),
		)
	}
	audioDec.RunTask(e, "audioDecoder")

	frameRequestVideo := channel.NewSignal(false)
	frameOutVideo := channel.NewBuffer[avsync.Frame]()
	syncVideo := avsync.NewSync(frameRequestVideo, pictureBuf, frameOutVideo, stcOffsetMod.RequestFromModule, stcOffsetMod.ReplyToModule)
	syncVideo.RunTask(e, "syncVideo")

	outPutVideoCfg := cfg.Module("outPutVideo")
	outPutVideo := avsync.NewOutPut(frameRequestVideo, frameOutVideo, outPutVideoCfg.Float64("framerate"), logging.Module(logger, "outPutVideo"))
	if outPutVideoCfg.Bool("trace") {
		outPutVideo.SetDisplayFrameTrace(rec.Bool("outPutVideo", "displayFrame", false))
	}
	outPutVideo.RunTask(e, "outPutVideo")

	frameRequestAudio := channel.NewSignal(false)
	frameOutAudio := channel.NewBuffer[avsync.Frame]()
	syncAudio := avsync.NewSync(frameRequestAudio, audioPictureBuf, frameOutAudio, stcOffsetMod.RequestFromModule, stcOffsetMod.ReplyToModule)
	syncAudio.RunTask(e, "syncAudio")

	outPutAudioCfg := cfg.Module("outPutAudio")
	outPutAudio := avsync.NewOutPut(frameRequestAudio, frameOutAudio, outPutAudioCfg.Float64("framerate"), logging.Module(logger, "outPutAudio"))
	if outPutAudioCfg.Bool("trace") {
		outPutAudio.SetDisplayFrameTrace(rec.Bool("outPutAudio", "displayFrame", false))
	}
	outPutAudio.RunTask(e, "outPutAudio")

	return &ModelBasic{engine: e, recorder: rec}
}

// wireReader constructs either TunerDVB or ReadMulticast from the "read"
// config object, selecting ReadMulticast whenever filenameAux is present
// (the only schema-distinguishing field between the two).
func wireReader(e *kernel.Engine, cfg *config.Config, out *channel.FillBuffer[[]byte], logger *log.Logger) {
	readCfg := cfg.Module("read")
	readLog := logging.Module(logger, "read")
	if aux := readCfg.StringDefault("filenameAux", ""); aux != "" {
		r := source.NewReadMulticast(readCfg.String("filename"), aux, readLog)
		r.Out = out
		r.RunTask(e, "read")
		return
	}
	r := source.NewTunerDVB(readCfg.String("filename"), readCfg.Float64("bitRate"), readLog)
	r.Out = out
	r.RunTask(e, "read")
}

// Run drives the simulation to runTime seconds, sampling CSV traces once
// per scheduling iteration.
func (m *ModelBasic) Run(runTime kernel.Time) {
	m.engine.AddObserver(func(now kernel.Time, isDelta bool) {
		m.recorder.Sample(float64(now), isDelta)
	})
	m.engine.Run(runTime)
	m.recorder.Close()
}
