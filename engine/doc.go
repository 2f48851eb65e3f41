// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 engine 实现会话引擎：把 transport、会话状态机和音频适配器连接起来。

# 执行路径

Run 启动两条并发路径并等待它们结束：

  - 网络路径：Link.Serve 的事件循环，回调 OnOpen/OnMessage/OnClose/OnFail。
    所有会话状态写入都发生在这里。
  - 采集路径：循环读取固定长度的采样块，监听未开启时丢弃并短暂等待，
    否则编码后以二进制帧发送。

两条路径只通过会话状态和 Link 的发送队列交互。

# 停止

运行标志由 Stop、ctx 取消或连接关闭/失败清除。采集路径在下一次迭代边界退出，
Stop 同时关闭 Link 以结束网络路径的阻塞读取。
*/
package engine
