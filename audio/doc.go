// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 audio 提供会话引擎依赖的音频适配器。

# 核心接口

  - Codec：采样块与压缩帧互转。Encode 返回空帧表示本块无需发送。
  - Capture：ReadBlock(n) 阻塞读取 n 个交织采样（有界时长）。
  - Playback：WriteBlock 写入解码后的采样。

# 内置实现

  - pcm 编解码：16 位小端直通，无压缩。其他格式（如 opus）通过
    RegisterCodec 注册。
  - ReaderCapture / WriterPlayback：基于 io.Reader / io.Writer 的 s16le 流。
  - CommandCapture / CommandPlayback：ffmpeg 采集麦克风、ffplay 播放。
  - NullCapture / NullPlayback：静音源与丢弃输出，用于无声卡环境。
*/
package audio
