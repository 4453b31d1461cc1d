package config

var LoadEnvFileList = loadEnvFiles
